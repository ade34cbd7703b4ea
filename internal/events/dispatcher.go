// Package events fans verified callbacks out to the listeners that grant
// rewards or keep audit records.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

// Dispatcher delivers each event to every registered listener, in
// registration order. A failing listener does not stop delivery to the rest.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []ssv.Listener
	logger    zerolog.Logger
}

// NewDispatcher creates a Dispatcher with the given initial listeners.
func NewDispatcher(logger zerolog.Logger, listeners ...ssv.Listener) *Dispatcher {
	return &Dispatcher{
		listeners: append([]ssv.Listener(nil), listeners...),
		logger:    logger.With().Str("component", "event_dispatcher").Logger(),
	}
}

// Register adds a listener.
func (d *Dispatcher) Register(l ssv.Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// OnVerified implements ssv.Listener. The returned error joins every
// listener failure.
func (d *Dispatcher) OnVerified(ctx context.Context, event ssv.VerifiedEvent) error {
	d.mu.RLock()
	listeners := append([]ssv.Listener(nil), d.listeners...)
	d.mu.RUnlock()

	var errs []error
	for i, l := range listeners {
		if err := l.OnVerified(ctx, event); err != nil {
			d.logger.Error().Err(err).Str("event_id", event.ID).Int("listener", i).Msg("Listener failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ ssv.Listener = (*Dispatcher)(nil)

// LogListener records every verified reward in the service log.
type LogListener struct {
	logger zerolog.Logger
}

// NewLogListener creates a LogListener.
func NewLogListener(logger zerolog.Logger) *LogListener {
	return &LogListener{logger: logger.With().Str("component", "reward_log").Logger()}
}

// OnVerified implements ssv.Listener.
func (l *LogListener) OnVerified(_ context.Context, event ssv.VerifiedEvent) error {
	l.logger.Info().
		Str("event_id", event.ID).
		Str("key_id", event.KeyID).
		Str("transaction_id", event.Get("transaction_id")).
		Str("user_id", event.Get("user_id")).
		Str("reward_item", event.Get("reward_item")).
		Str("reward_amount", event.Get("reward_amount")).
		Str("ad_unit", event.Get("ad_unit")).
		Msg("Valid SSV callback")
	return nil
}

var _ ssv.Listener = (*LogListener)(nil)
