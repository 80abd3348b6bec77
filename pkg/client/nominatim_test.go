package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() ClientConfig {
	return ClientConfig{
		Timeout:        time.Second,
		Threshold:      3,
		BreakerTimeout: time.Minute,
		UserAgent:      "AreaMapper",
	}
}

func TestNominatimGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Melbourne Central, Victoria, Australia", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "au", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "AreaMapper", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"place_id": 1, "lat": "-37.8102", "lon": "144.9628", "display_name": "Melbourne Central"}]`))
	}))
	defer server.Close()

	c := NewNominatimClient(server.URL+"/", "au", testConfig(), zap.NewNop())

	result, err := c.Geocode(context.Background(), "Melbourne Central, Victoria, Australia")
	require.NoError(t, err)
	assert.Equal(t, "-37.8102", result["lat"])
	assert.Equal(t, "144.9628", result["lon"])
}

func TestNominatimNoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := NewNominatimClient(server.URL, "au", testConfig(), zap.NewNop())

	result, err := c.Geocode(context.Background(), "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestBaseClientDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewBaseClient("test", testConfig(), zap.NewNop())

	_, err := c.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBaseClientCircuitOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewBaseClient("test", testConfig(), zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), server.URL)
		require.Error(t, err)
	}

	_, err := c.Get(context.Background(), server.URL)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBaseClientDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Date,Hour\n01/01/2022,0\n"))
	}))
	defer server.Close()

	c := NewBaseClient("test", testConfig(), zap.NewNop())

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), server.URL, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "Date,Hour\n01/01/2022,0\n", buf.String())
}
