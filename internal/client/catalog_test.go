package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/catalog/internal/config"
	"trove/catalog/internal/domain"
)

func testConfig(baseURL string) config.CatalogConfig {
	return config.CatalogConfig{
		BaseURL:              baseURL,
		ClassifiersPath:      "/classifiers",
		Timeout:              5,
		MaxRetries:           0,
		MaxRequestsPerSecond: 100,
	}
}

func TestFetchClassifiers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classifiers", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Topic :: Software Development\nPrivate :: Do Not Upload\n"))
	}))
	defer srv.Close()

	catalog, err := NewCatalogClient(testConfig(srv.URL), nil).FetchClassifiers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.Classifiers("Topic :: Software Development", "Private :: Do Not Upload"), catalog.Classifiers)
	assert.Equal(t, srv.URL+"/classifiers", catalog.Source)
	assert.False(t, catalog.FetchedAt.IsZero())
}

func TestFetchClassifiersEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
	}))
	defer srv.Close()

	_, err := NewCatalogClient(testConfig(srv.URL), nil).FetchClassifiers(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptyCatalog)
}

func TestFetchClassifiersHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewCatalogClient(testConfig(srv.URL), nil).FetchClassifiers(context.Background())
	require.Error(t, err)
	assert.False(t, IsCircuitOpen(err))
	assert.Contains(t, err.Error(), "404")
}

func TestFetchClassifiersThrottledOpensCircuit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCatalogClient(testConfig(srv.URL), nil)

	for i := 1; i < defaultCircuitBreakerThreshold; i++ {
		_, err := c.FetchClassifiers(context.Background())
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err), "attempt %d", i)
		assert.Contains(t, err.Error(), "429")
	}

	_, err := c.FetchClassifiers(context.Background())
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))

	_, err = c.FetchClassifiers(context.Background())
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, int32(defaultCircuitBreakerThreshold), hits.Load())
}

func TestFetchClassifiersSuccessResetsThrottleCount(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every third request succeeds.
		if hits.Add(1)%3 == 0 {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("Topic :: A\n"))
			return
		}
		http.Error(w, "slow down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewCatalogClient(testConfig(srv.URL), nil)

	for i := 0; i < 6; i++ {
		_, err := c.FetchClassifiers(context.Background())
		if err != nil {
			assert.False(t, IsCircuitOpen(err), "request %d", i+1)
		}
	}
	assert.Equal(t, int32(6), hits.Load())
}

type staticProxy string

func (p staticProxy) Get() string { return string(p) }
func (p staticProxy) Len() int    { return 1 }

func TestFetchClassifiersThrottledRetriesThroughProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	// Acts as a forward proxy: plain-HTTP proxy requests carry the absolute URL.
	proxied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Topic :: Proxied\n"))
	}))
	defer proxied.Close()

	cl := NewCatalogClient(testConfig(upstream.URL), nil).(*catalogClient)
	cl.proxySupplier = staticProxy(proxied.URL)

	catalog, err := cl.FetchClassifiers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Classifiers("Topic :: Proxied"), catalog.Classifiers)
}
