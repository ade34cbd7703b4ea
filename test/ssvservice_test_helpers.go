package test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-admob-ssv/internal/keys"
	"github.com/tinywideclouds/go-admob-ssv/internal/storage/inmemory"
	"github.com/tinywideclouds/go-admob-ssv/internal/verification"
	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
	"github.com/tinywideclouds/go-admob-ssv/ssvservice"
	"github.com/tinywideclouds/go-admob-ssv/ssvservice/config"
)

// AdMob's published test key and a callback signed with it.
const (
	TestKeyID  = "3335741209"
	TestKeyPEM = "-----BEGIN PUBLIC KEY-----\n" +
		"MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAE+nzvoGqvDeB9+SzE6igTl7TyK4JB\n" +
		"bglwir9oTcQta8NuG26ZpZFxt+F2NDk7asTE6/2Yc8i1ATcGIqtuS5hv0Q==\n" +
		"-----END PUBLIC KEY-----\n"

	TestSignature = "MEQCIAhKY5P-aBmjU0iqxtjq2JPzeNKnQ92ZbSPC33Sp4ByeAiBArqhg9_uafB1LCBYVIXWNOW8vVVlocLc81ptROfE44Q"

	// RewardQuery is the signed part of the callback, in the order AdMob sends it.
	RewardQuery = "ad_network=5450213213286189855&ad_unit=1234567890&custom_data=customdata42" +
		"&reward_amount=1&reward_item=Reward&timestamp=1683852940453&transaction_id=123456789&user_id=userid42"

	// SignedRewardQuery is the full callback query string.
	SignedRewardQuery = RewardQuery + "&signature=" + TestSignature + "&key_id=" + TestKeyID
)

// KeyServerDocument returns a key server response holding the given keys.
func KeyServerDocument(pems map[string]string) []byte {
	type key struct {
		KeyID string `json:"keyId"`
		PEM   string `json:"pem"`
	}
	doc := struct {
		Keys []key `json:"keys"`
	}{}
	for id, pem := range pems {
		doc.Keys = append(doc.Keys, key{KeyID: id, PEM: pem})
	}
	body, _ := json.Marshal(doc)
	return body
}

// KeyServer is a fake key server that counts the fetches it serves.
type KeyServer struct {
	*httptest.Server
	hits atomic.Int32
}

// Hits returns the number of requests served so far.
func (k *KeyServer) Hits() int { return int(k.hits.Load()) }

// NewKeyServer serves the AdMob test key. Callers must Close it.
func NewKeyServer() *KeyServer {
	return NewKeyServerWith(http.StatusOK, KeyServerDocument(map[string]string{TestKeyID: TestKeyPEM}))
}

// NewKeyServerWith always answers with the given status and body.
func NewKeyServerWith(status int, body []byte) *KeyServer {
	ks := &KeyServer{}
	ks.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	return ks
}

// NewTestConfig returns a service config pointing at keyServerURL.
func NewTestConfig(keyServerURL string) *config.Config {
	cfg := config.Default()
	cfg.HTTPListenAddr = ":0"
	cfg.KeyServerURL = keyServerURL
	cfg.KeyFetchTimeout = 2 * time.Second
	cfg.KeyFetchRetries = 0
	cfg.CorsConfig = middleware.CorsConfig{
		AllowedOrigins: []string{"*"}, // Allow all for tests
		Role:           middleware.CorsRoleDefault,
	}
	return cfg
}

// NewTestServer creates and starts a new httptest.Server for end-to-end testing.
// It assembles the service with an in-memory key cache.
func NewTestServer(keyServerURL string, listener ssv.Listener) *httptest.Server {
	return NewTestSSVService(inmemory.New(), keyServerURL, listener)
}

// NewTestSSVService creates and starts a new httptest.Server for the SSV
// service, backed by the given key cache.
func NewTestSSVService(cache ssv.KeyCache, keyServerURL string, listener ssv.Listener) *httptest.Server {
	cfg := NewTestConfig(keyServerURL)
	logger := zerolog.Nop()

	store := keys.New(cfg.KeysConfig(), cache, nil, logger)
	callback := verification.NewCallback(store, listener, logger)

	service := ssvservice.New(cfg, callback, logger)
	return httptest.NewServer(service.Mux())
}

// NewSigningKey generates a P-256 key pair and returns the private key with
// the PEM public key the way the key server publishes it.
func NewSigningKey() (*ecdsa.PrivateKey, string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", err
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, "", err
	}
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Sign returns the DER ECDSA signature over content, URL-safe base64
// without padding, as the ad network sends it.
func Sign(priv *ecdsa.PrivateKey, content []byte) (string, error) {
	digest := sha256.Sum256(content)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}
