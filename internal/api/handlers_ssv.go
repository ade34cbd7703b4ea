package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// Verifier runs a callback request through signature verification.
type Verifier interface {
	Handle(ctx context.Context, req ssv.CallbackRequest) (ssv.Outcome, error)
}

// API holds the dependencies of the callback endpoint.
type API struct {
	Verifier Verifier
	Logger   zerolog.Logger
}

// CallbackHandler verifies an AdMob reward callback.
//
// A verified callback gets 200 with an empty body. Rejections get 400 with
// the reason as a JSON error. A key server outage is reported as 502 so the
// ad network retries later.
func (a *API) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	req := ssv.NewCallbackRequest(r.URL.RawQuery)

	outcome, err := a.Verifier.Handle(r.Context(), req)
	logger := a.Logger.With().
		Str("key_id", req.Params.Get(ssv.KeyIDParam)).
		Str("transaction_id", req.Params.Get("transaction_id")).
		Logger()

	if err != nil {
		switch {
		case errors.Is(err, ssv.ErrKeyFetch):
			logger.Error().Err(err).Msg("Key server unavailable")
			response.WriteJSONError(w, http.StatusBadGateway, "Key server unavailable")
		case errors.Is(err, ssv.ErrDelivery):
			logger.Error().Err(err).Msg("Verified callback could not be delivered")
			response.WriteJSONError(w, http.StatusInternalServerError, "Failed to process reward")
		default:
			logger.Error().Err(err).Msg("Callback verification failed")
			response.WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if !outcome.Verified() {
		logger.Warn().Str("status", outcome.Status.String()).Msg("Rejected SSV callback")
		response.WriteJSONError(w, http.StatusBadRequest, outcome.Reason())
		return
	}

	w.WriteHeader(http.StatusOK)
	logger.Info().Msg("Verified SSV callback")
}
