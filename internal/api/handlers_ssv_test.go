package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-admob-ssv/internal/api"
	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// MockVerifier is a mock implementation of the api.Verifier interface.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Handle(ctx context.Context, req ssv.CallbackRequest) (ssv.Outcome, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ssv.Outcome), args.Error(1)
}

const rawQuery = "reward_amount=1&user_id=userid42&signature=c2ln&key_id=1"

func decodeAPIError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var errResp response.APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	return errResp.Error
}

func TestCallbackHandler(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("Success - 200 OK with empty body", func(t *testing.T) {
		// Arrange
		verifier := new(MockVerifier)
		verifier.On("Handle", mock.Anything, ssv.NewCallbackRequest(rawQuery)).
			Return(ssv.Outcome{Status: ssv.StatusVerified, KeyID: "1"}, nil)

		apiHandler := &api.API{Verifier: verifier, Logger: logger}
		req := httptest.NewRequest(http.MethodGet, "/admob-ssv/?"+rawQuery, nil)
		rr := httptest.NewRecorder()

		// Act
		apiHandler.CallbackHandler(rr, req)

		// Assert
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Body.Bytes())
		verifier.AssertExpectations(t)
	})

	rejections := []struct {
		name    string
		outcome ssv.Outcome
		reason  string
	}{
		{"missing signature", ssv.Outcome{Status: ssv.StatusMissingParameter, Param: "signature"}, "Missing signature"},
		{"missing key_id", ssv.Outcome{Status: ssv.StatusMissingParameter, Param: "key_id"}, "Missing key_id"},
		{"unknown key", ssv.Outcome{Status: ssv.StatusUnknownKey, KeyID: "1"}, "Unknown key_id"},
		{"invalid signature", ssv.Outcome{Status: ssv.StatusInvalidSignature, KeyID: "1"}, "Invalid signature"},
	}
	for _, tc := range rejections {
		t.Run("Failure - 400 "+tc.name, func(t *testing.T) {
			// Arrange
			verifier := new(MockVerifier)
			verifier.On("Handle", mock.Anything, mock.Anything).Return(tc.outcome, nil)

			apiHandler := &api.API{Verifier: verifier, Logger: logger}
			req := httptest.NewRequest(http.MethodGet, "/admob-ssv/?"+rawQuery, nil)
			rr := httptest.NewRecorder()

			// Act
			apiHandler.CallbackHandler(rr, req)

			// Assert
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.reason, decodeAPIError(t, rr))
		})
	}

	faults := []struct {
		name   string
		err    error
		code   int
		reason string
	}{
		{"key server down", fmt.Errorf("%w: status 503", ssv.ErrKeyFetch), http.StatusBadGateway, "Key server unavailable"},
		{"unusable key", fmt.Errorf("%w: not PEM", ssv.ErrKeyParse), http.StatusInternalServerError, "Internal server error"},
		{"listener failure", fmt.Errorf("%w: grant failed", ssv.ErrDelivery), http.StatusInternalServerError, "Failed to process reward"},
	}
	for _, tc := range faults {
		t.Run(fmt.Sprintf("Failure - %d %s", tc.code, tc.name), func(t *testing.T) {
			// Arrange
			verifier := new(MockVerifier)
			verifier.On("Handle", mock.Anything, mock.Anything).Return(ssv.Outcome{}, tc.err)

			apiHandler := &api.API{Verifier: verifier, Logger: logger}
			req := httptest.NewRequest(http.MethodGet, "/admob-ssv/?"+rawQuery, nil)
			rr := httptest.NewRecorder()

			// Act
			apiHandler.CallbackHandler(rr, req)

			// Assert
			assert.Equal(t, tc.code, rr.Code)
			assert.Equal(t, tc.reason, decodeAPIError(t, rr))
		})
	}

	t.Run("Passes the raw query through unchanged", func(t *testing.T) {
		// Arrange
		raw := "custom_data=a+b%26c&signature=c2ln&key_id=1"
		verifier := new(MockVerifier)
		verifier.On("Handle", mock.Anything, mock.MatchedBy(func(req ssv.CallbackRequest) bool {
			return req.RawQuery == raw && req.Params.Get("custom_data") == "a b&c"
		})).Return(ssv.Outcome{Status: ssv.StatusVerified}, nil)

		apiHandler := &api.API{Verifier: verifier, Logger: logger}
		req := httptest.NewRequest(http.MethodGet, "/admob-ssv/?"+raw, nil)
		rr := httptest.NewRecorder()

		// Act
		apiHandler.CallbackHandler(rr, req)

		// Assert
		assert.Equal(t, http.StatusOK, rr.Code)
		verifier.AssertExpectations(t)
	})
}
