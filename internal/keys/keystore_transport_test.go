package keys_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-admob-ssv/internal/keys"
	"github.com/tinywideclouds/go-admob-ssv/internal/storage/inmemory"
	"github.com/tinywideclouds/go-admob-ssv/pkg/ssv"
)

func TestStore_DefaultServerURL(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, keys.DefaultServerURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Accept"))
			return httpmock.NewStringResponse(http.StatusOK, keyServerBody), nil
		})

	store := keys.New(keys.Config{}, inmemory.New(), client, zerolog.Nop())

	pem, err := store.Resolve(context.Background(), "3335741209")
	require.NoError(t, err)
	assert.Equal(t, testPEM, pem)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestStore_TransportErrorIsRetried(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, keys.DefaultServerURL,
		httpmock.NewErrorResponder(errors.New("connection reset by peer")))

	store := keys.New(keys.Config{FetchRetries: 1}, inmemory.New(), client, zerolog.Nop())

	_, err := store.Resolve(context.Background(), "3335741209")
	assert.ErrorIs(t, err, ssv.ErrKeyFetch)
	assert.ErrorContains(t, err, "connection reset by peer")
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}
