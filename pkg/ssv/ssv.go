// Package ssv contains the public domain models, interfaces, and errors for
// server-side verification of ad network reward callbacks. It defines the
// public contract shared by the verifier, the cache backends and listeners.
package ssv

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// Reserved query parameter names. They carry the detached signature and are
// never part of the signed content.
const (
	SignatureParam = "signature"
	KeyIDParam     = "key_id"
)

// PublicKeySet maps a key identifier to its PEM-encoded public key.
// A set is an immutable snapshot: refreshes replace it wholesale.
type PublicKeySet map[string]string

// Lookup returns the PEM for keyID.
func (s PublicKeySet) Lookup(keyID string) (string, bool) {
	pem, ok := s[keyID]
	return pem, ok
}

var (
	// ErrKeyNotFound means the key id is absent from a freshly fetched key set.
	ErrKeyNotFound = errors.New("key id not found in key set")
	// ErrKeyFetch means the key set could not be retrieved from the key server.
	ErrKeyFetch = errors.New("failed to fetch key set")
	// ErrKeyParse means a PEM from the key set is not a usable EC public key.
	ErrKeyParse = errors.New("failed to parse public key")
	// ErrMalformedSignature means the signature parameter is not URL-safe base64.
	ErrMalformedSignature = errors.New("malformed signature encoding")
	// ErrDelivery means a listener failed to handle a verified event.
	ErrDelivery = errors.New("verified event delivery failed")
)

// Status is the closed set of verification results.
type Status int

const (
	StatusMissingParameter Status = iota + 1
	StatusUnknownKey
	StatusInvalidSignature
	StatusVerified
)

func (s Status) String() string {
	switch s {
	case StatusMissingParameter:
		return "missing_parameter"
	case StatusUnknownKey:
		return "unknown_key"
	case StatusInvalidSignature:
		return "invalid_signature"
	case StatusVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// Outcome is the result of one pass through the callback state machine.
type Outcome struct {
	Status Status
	// Param names the missing parameter for StatusMissingParameter.
	Param string
	// KeyID is set once the key_id parameter has been read.
	KeyID string
	// Payload holds the non-reserved parameters for StatusVerified.
	Payload map[string]string
}

// Verified reports whether the callback signature checked out.
func (o Outcome) Verified() bool { return o.Status == StatusVerified }

// Reason is a short, caller-facing description of a rejection.
func (o Outcome) Reason() string {
	switch o.Status {
	case StatusMissingParameter:
		return "Missing " + o.Param
	case StatusUnknownKey:
		return "Unknown key_id"
	case StatusInvalidSignature:
		return "Invalid signature"
	case StatusVerified:
		return ""
	default:
		return "Unknown outcome"
	}
}

// CallbackRequest is an inbound callback: the raw query string exactly as
// transmitted plus its parsed form.
type CallbackRequest struct {
	RawQuery string
	Params   url.Values
}

// NewCallbackRequest parses rawQuery. Pairs that fail to parse are dropped
// from Params, matching net/http's behaviour for r.URL.Query().
func NewCallbackRequest(rawQuery string) CallbackRequest {
	params, _ := url.ParseQuery(rawQuery)
	return CallbackRequest{RawQuery: rawQuery, Params: params}
}

// Flatten returns the first value of every parameter.
func Flatten(params url.Values) map[string]string {
	flat := make(map[string]string, len(params))
	for name, values := range params {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}
	return flat
}

// VerifiedEvent is emitted to listeners after a successful verification.
type VerifiedEvent struct {
	ID         string
	ReceivedAt time.Time
	KeyID      string
	// Params is the full original parameter mapping, signature and key_id
	// included, so listeners can keep an audit record.
	Params map[string]string
}

// Get returns the named parameter or "".
func (e VerifiedEvent) Get(name string) string { return e.Params[name] }

// Listener reacts to verified callbacks, e.g. by granting the reward.
type Listener interface {
	OnVerified(ctx context.Context, event VerifiedEvent) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event VerifiedEvent) error

// OnVerified calls f.
func (f ListenerFunc) OnVerified(ctx context.Context, event VerifiedEvent) error {
	return f(ctx, event)
}
