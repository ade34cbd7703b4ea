package verification_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AdMob's published test key and two callbacks signed with it.
const (
	testKeyID  = "3335741209"
	testKeyPEM = `
-----BEGIN PUBLIC KEY-----
MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAE+nzvoGqvDeB9+SzE6igTl7TyK4JB
bglwir9oTcQta8NuG26ZpZFxt+F2NDk7asTE6/2Yc8i1ATcGIqtuS5hv0Q==
-----END PUBLIC KEY-----
`
	testSignature    = "MEQCIAhKY5P-aBmjU0iqxtjq2JPzeNKnQ92ZbSPC33Sp4ByeAiBArqhg9_uafB1LCBYVIXWNOW8vVVlocLc81ptROfE44Q"
	testSignatureHex = "30440220084a6393fe6819a35348aac6d8ead893f378d2a743dd996d23c2df74a9e01c9e022040aea860f7fb9a7c1d4b08161521758d396f2f55596870b73cd69b5139f138e1"
	testContent      = "ad_network=5450213213286189855&ad_unit=1234567890&custom_data=customdata42&reward_amount=1&reward_item=Reward&timestamp=1683852940453&transaction_id=123456789&user_id=userid42"

	base64PayloadSignature = "MEQCIGdfQR4eu9bOi3gg069p0ZcH5H-u3etEFQsSJZ4fPU_EAiB75fI8p8uKetMld8_wT3GNPuGnnJYNpHN2ZP9u7bcpiA"
)

// rewardParams is the payload signed by testSignature, in the order AdMob sends it.
func rewardParams() [][2]string {
	return [][2]string{
		{"ad_network", "5450213213286189855"},
		{"ad_unit", "1234567890"},
		{"custom_data", "customdata42"},
		{"reward_amount", "1"},
		{"reward_item", "Reward"},
		{"timestamp", "1683852940453"},
		{"transaction_id", "123456789"},
		{"user_id", "userid42"},
	}
}

// base64PayloadParams is the payload signed by base64PayloadSignature.
func base64PayloadParams() [][2]string {
	return [][2]string{
		{"ad_network", "5450213213286189855"},
		{"ad_unit", "1234567890"},
		{"custom_data", "8b626840-a5bb-4732-a02b-67517d6b9443"},
		{"reward_amount", "1"},
		{"reward_item", "Boost"},
		{"timestamp", "1683939248995"},
		{"transaction_id", "123456789"},
		{"user_id", "VXNlcjo0Mg=="},
	}
}

// buildQuery form-encodes pairs in exactly the given order.
func buildQuery(pairs [][2]string) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	return strings.Join(parts, "&")
}

func withReserved(pairs [][2]string, signature, keyID string) [][2]string {
	out := append([][2]string{}, pairs...)
	return append(out, [2]string{"signature", signature}, [2]string{"key_id", keyID})
}

// newSigningKey generates a P-256 key and returns it with its PEM public key.
func newSigningKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// sign returns the DER signature over content, URL-safe base64 without padding.
func sign(t *testing.T, priv *ecdsa.PrivateKey, content []byte) string {
	t.Helper()
	digest := sha256.Sum256(content)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(sig)
}
