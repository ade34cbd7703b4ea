package verification

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// DecodeSignature decodes a URL-safe base64 signature whatever padding it
// arrived with. Padding is stripped and the unpadded alphabet applied, so
// inputs needing zero, one or two '=' decode the same with or without them.
func DecodeSignature(encoded string) ([]byte, error) {
	sig, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ssv.ErrMalformedSignature, err)
	}
	return sig, nil
}

// ParsePublicKey parses a PEM "PUBLIC KEY" block into an EC public key.
func ParsePublicKey(pemKey string) (*ecdsa.PublicKey, error) {
	key, err := jwk.ParseKey([]byte(pemKey), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ssv.ErrKeyParse, err)
	}
	if key.KeyType() != jwa.EC {
		return nil, fmt.Errorf("%w: unexpected key type %s", ssv.ErrKeyParse, key.KeyType())
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ssv.ErrKeyParse, err)
	}
	pub, ok := raw.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected public key, got %T", ssv.ErrKeyParse, raw)
	}
	return pub, nil
}

// VerifySignature checks a DER-encoded ECDSA signature over the SHA-256 digest
// of content. A signature that does not match, or is not valid DER, returns
// false with a nil error; only an unusable key is an error.
func VerifySignature(pemKey string, signature, content []byte) (bool, error) {
	pub, err := ParsePublicKey(pemKey)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(content)
	return ecdsa.VerifyASN1(pub, digest[:], signature), nil
}
