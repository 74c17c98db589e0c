package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestRunLoadTestCreatesThenReads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "0b8e2f4c-8a5e-4a35-9a4e-1c1f0a3c2d11"})
	})
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache", "HIT")
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	stats := runLoadTest(Config{BaseURL: srv.URL, Concurrency: 2, Duration: 100 * time.Millisecond, Seed: 2})
	require.Positive(t, stats.totalRequests.Load())
	assert.Positive(t, stats.reads.Load())
	assert.Equal(t, stats.reads.Load(), stats.cacheHits.Load())
	assert.Zero(t, stats.errorCount.Load())
}
