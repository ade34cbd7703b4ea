package ssvservice

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-admob-ssv/internal/api"
	"github.com/tinywideclouds/go-admob-ssv/ssvservice/config"
)

// Wrapper embeds the BaseServer to inherit standard server functionality.
type Wrapper struct {
	*microservice.BaseServer
	logger zerolog.Logger
}

// New creates and wires up the SSV callback service.
func New(cfg *config.Config, verifier api.Verifier, logger zerolog.Logger) *Wrapper {
	baseServer := microservice.NewBaseServer(logger, cfg.HTTPListenAddr)

	apiHandler := &api.API{Verifier: verifier, Logger: logger}

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig)

	callbackHandler := http.HandlerFunc(apiHandler.CallbackHandler)
	mux.Handle("GET "+cfg.CallbackPath, corsMiddleware(callbackHandler))

	optionsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mux.Handle("OPTIONS "+cfg.CallbackPath, corsMiddleware(optionsHandler))

	logger.Info().Str("path", cfg.CallbackPath).Msg("Registered SSV callback route")

	return &Wrapper{
		BaseServer: baseServer,
		logger:     logger,
	}
}

// Start runs the HTTP server and handles the readiness logic.
func (w *Wrapper) Start() error {
	errChan := make(chan error, 1)
	httpReadyChan := make(chan struct{})
	w.BaseServer.SetReadyChannel(httpReadyChan)

	go func() {
		if err := w.BaseServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error().Err(err).Msg("HTTP server failed")
			errChan <- err
		}
		close(errChan)
	}()

	// Wait for the listener to come up or fail.
	select {
	case <-httpReadyChan:
		w.logger.Info().Msg("HTTP listener is active.")
		// Keys are fetched lazily on the first callback, so the service is ready now.
		w.SetReady(true)
		w.logger.Info().Msg("Service is now ready.")

	case err := <-errChan:
		return err
	}

	return <-errChan
}
