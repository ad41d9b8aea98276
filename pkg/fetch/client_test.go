package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/retry"
)

const payload = `{"paints":[{"id":"p1","function":"URL","users":["forsen"]}],"badges":[]}`

func TestFetchCosmetics(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/cosmetics", r.URL.Path)
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	body, err := New(srv.URL, nil).FetchCosmetics(context.Background(), constants.UserIdentifierLogin)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(body))
	assert.Equal(t, "user_identifier=login", query)
}

func TestFetchCosmeticsRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("no base url", func(t *testing.T) {
		_, err := New("", nil).FetchCosmetics(ctx, constants.UserIdentifierLogin)
		assert.ErrorIs(t, err, constants.ErrNoBaseURL)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := New("http://127.0.0.1:1", nil).FetchCosmetics(ctx, "email")
		assert.ErrorIs(t, err, constants.ErrInvalidIdentifier)
	})

	for name, body := range map[string]string{
		"not json":      `<html>`,
		"array":         `[]`,
		"no paints":     `{"badges":[]}`,
		"paints object": `{"paints":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, nil).FetchCosmetics(ctx, constants.UserIdentifierLogin)
			assert.ErrorIs(t, err, constants.ErrInvalidPayload)
		})
	}
}

func TestFetchCosmeticsStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	c.Retryer = retry.NewFixedDelayRetryer(time.Millisecond, 3)

	_, err := c.FetchCosmetics(context.Background(), constants.UserIdentifierLogin)
	assert.ErrorIs(t, err, constants.ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestFetchCosmeticsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	c.Retryer = retry.NewFixedDelayRetryer(time.Millisecond, 5)

	body, err := c.FetchCosmetics(context.Background(), constants.UserIdentifierLogin)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchCosmeticsWithoutRetryer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).FetchCosmetics(context.Background(), constants.UserIdentifierLogin)
	assert.ErrorIs(t, err, constants.ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCosmeticsURLKeepsBasePath(t *testing.T) {
	c := New("https://example.test/api/", nil)
	u, err := c.cosmeticsURL(constants.UserIdentifierTwitchID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/api/v2/cosmetics?user_identifier=twitch_id", u)
}
