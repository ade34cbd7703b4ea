package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-admob-ssv/internal/events"
	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

func testEvent() ssv.VerifiedEvent {
	return ssv.VerifiedEvent{
		ID:         "evt-1",
		ReceivedAt: time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC),
		KeyID:      "3335741209",
		Params: map[string]string{
			"transaction_id": "123456789",
			"user_id":        "userid42",
			"reward_item":    "Reward",
			"reward_amount":  "1",
			"signature":      "sig",
			"key_id":         "3335741209",
		},
	}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	var order []string
	record := func(name string) ssv.Listener {
		return ssv.ListenerFunc(func(ctx context.Context, e ssv.VerifiedEvent) error {
			order = append(order, name+":"+e.ID)
			return nil
		})
	}

	d := events.NewDispatcher(zerolog.Nop(), record("first"))
	d.Register(record("second"))

	require.NoError(t, d.OnVerified(context.Background(), testEvent()))
	assert.Equal(t, []string{"first:evt-1", "second:evt-1"}, order)
	assert.Equal(t, 2, d.Len())
}

func TestDispatcher_ContinuesPastFailures(t *testing.T) {
	errFirst := errors.New("first failed")
	errThird := errors.New("third failed")
	called := 0

	d := events.NewDispatcher(zerolog.Nop(),
		ssv.ListenerFunc(func(context.Context, ssv.VerifiedEvent) error { called++; return errFirst }),
		ssv.ListenerFunc(func(context.Context, ssv.VerifiedEvent) error { called++; return nil }),
		ssv.ListenerFunc(func(context.Context, ssv.VerifiedEvent) error { called++; return errThird }),
	)

	err := d.OnVerified(context.Background(), testEvent())
	assert.Equal(t, 3, called)
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errThird)
}

func TestDispatcher_NoListeners(t *testing.T) {
	d := events.NewDispatcher(zerolog.Nop())
	assert.NoError(t, d.OnVerified(context.Background(), testEvent()))
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	l := events.NewLogListener(zerolog.New(&buf))

	require.NoError(t, l.OnVerified(context.Background(), testEvent()))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Valid SSV callback", line["message"])
	assert.Equal(t, "evt-1", line["event_id"])
	assert.Equal(t, "123456789", line["transaction_id"])
	assert.Equal(t, "userid42", line["user_id"])
	assert.NotContains(t, line, "signature")
}
