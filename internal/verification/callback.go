// Package verification reconstructs and checks the signed content of ad
// network reward callbacks.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// KeyResolver maps a key id to its PEM public key.
type KeyResolver interface {
	Resolve(ctx context.Context, keyID string) (string, error)
}

// Callback runs one inbound request through the verification steps:
// required parameters, key lookup, canonical content, signature decoding,
// ECDSA check. Rejections are returned as an Outcome; the error return is
// reserved for faults that are not the caller's doing (key server down,
// unusable key material, listener failure).
type Callback struct {
	keys     KeyResolver
	listener ssv.Listener
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewCallback creates a Callback. listener may be nil.
func NewCallback(keys KeyResolver, listener ssv.Listener, logger zerolog.Logger) *Callback {
	return &Callback{
		keys:     keys,
		listener: listener,
		logger:   logger.With().Str("component", "ssv_callback").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Handle verifies req and, on success, delivers a VerifiedEvent to the listener.
func (c *Callback) Handle(ctx context.Context, req ssv.CallbackRequest) (ssv.Outcome, error) {
	for _, name := range []string{ssv.SignatureParam, ssv.KeyIDParam} {
		if !req.Params.Has(name) {
			return ssv.Outcome{Status: ssv.StatusMissingParameter, Param: name}, nil
		}
	}
	keyID := req.Params.Get(ssv.KeyIDParam)
	logger := c.logger.With().Str("key_id", keyID).Logger()

	pemKey, err := c.keys.Resolve(ctx, keyID)
	if err != nil {
		if errors.Is(err, ssv.ErrKeyNotFound) {
			return ssv.Outcome{Status: ssv.StatusUnknownKey, KeyID: keyID}, nil
		}
		return ssv.Outcome{}, err
	}

	content, err := CanonicalContent(req.RawQuery)
	if err != nil {
		logger.Debug().Err(err).Msg("Could not derive signed content")
		return ssv.Outcome{Status: ssv.StatusInvalidSignature, KeyID: keyID}, nil
	}

	signature, err := DecodeSignature(req.Params.Get(ssv.SignatureParam))
	if err != nil {
		logger.Debug().Err(err).Msg("Signature is not valid base64")
		return ssv.Outcome{Status: ssv.StatusInvalidSignature, KeyID: keyID}, nil
	}

	ok, err := VerifySignature(pemKey, signature, content)
	if err != nil {
		return ssv.Outcome{}, err
	}
	if !ok {
		return ssv.Outcome{Status: ssv.StatusInvalidSignature, KeyID: keyID}, nil
	}

	params := ssv.Flatten(req.Params)
	outcome := ssv.Outcome{Status: ssv.StatusVerified, KeyID: keyID, Payload: payload(params)}

	if c.listener == nil {
		return outcome, nil
	}
	event := ssv.VerifiedEvent{
		ID:         c.newID(),
		ReceivedAt: c.now().UTC(),
		KeyID:      keyID,
		Params:     params,
	}
	if err := c.listener.OnVerified(ctx, event); err != nil {
		return outcome, fmt.Errorf("%w: event %s: %w", ssv.ErrDelivery, event.ID, err)
	}
	return outcome, nil
}

func payload(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for name, value := range params {
		if name == ssv.SignatureParam || name == ssv.KeyIDParam {
			continue
		}
		out[name] = value
	}
	return out
}
