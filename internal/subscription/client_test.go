package subscription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetch(t *testing.T) {
	var gotHeader http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.Header().Set(HeaderUserInfo, "upload=1; download=2")
		w.Write([]byte("proxies: []\n"))
	}))
	defer upstream.Close()

	client := NewClient(ClientConfig{Timeout: 5 * time.Second})

	feed, err := client.Fetch(context.Background(), upstream.URL)
	require.NoError(t, err)

	assert.Equal(t, "proxies: []\n", feed.Body)
	assert.Equal(t, "upload=1; download=2", feed.Header.Get(HeaderUserInfo))
	assert.Equal(t, DefaultUserAgent, gotHeader.Get("User-Agent"))
	assert.Equal(t, "*/*", gotHeader.Get("Accept"))
	assert.Equal(t, "no-cache", gotHeader.Get("Cache-Control"))
}

func TestClientFetchErrors(t *testing.T) {
	t.Run("non 2xx status", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}))
		defer upstream.Close()

		_, err := NewClient(ClientConfig{}).Fetch(context.Background(), upstream.URL)

		var upstreamErr *UpstreamError
		require.True(t, errors.As(err, &upstreamErr))
		assert.Equal(t, http.StatusForbidden, upstreamErr.StatusCode)
	})

	t.Run("network failure", func(t *testing.T) {
		upstream := httptest.NewServer(http.NotFoundHandler())
		addr := upstream.URL
		upstream.Close()

		_, err := NewClient(ClientConfig{}).Fetch(context.Background(), addr)

		var upstreamErr *UpstreamError
		require.True(t, errors.As(err, &upstreamErr))
		assert.Zero(t, upstreamErr.StatusCode)
	})

	t.Run("not an http url", func(t *testing.T) {
		_, err := NewClient(ClientConfig{}).Fetch(context.Background(), "ftp://example.com/sub")

		var upstreamErr *UpstreamError
		assert.True(t, errors.As(err, &upstreamErr))
	})
}

func TestClientBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	client := NewClient(ClientConfig{BreakerFailures: 2, BreakerTimeout: time.Minute})

	for i := 0; i < 4; i++ {
		_, err := client.Fetch(context.Background(), upstream.URL)
		var upstreamErr *UpstreamError
		require.True(t, errors.As(err, &upstreamErr))
	}

	assert.Equal(t, int32(2), calls.Load())
}

func TestClientFetchFeedSize(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer upstream.Close()

	t.Run("over the limit", func(t *testing.T) {
		_, err := NewClient(ClientConfig{MaxBodySize: 10}).Fetch(context.Background(), upstream.URL)

		var upstreamErr *UpstreamError
		require.True(t, errors.As(err, &upstreamErr))
		assert.ErrorIs(t, err, ErrFeedTooLarge)
	})

	t.Run("exactly at the limit", func(t *testing.T) {
		feed, err := NewClient(ClientConfig{MaxBodySize: 100}).Fetch(context.Background(), upstream.URL)
		require.NoError(t, err)
		assert.Len(t, feed.Body, 100)
	})
}
