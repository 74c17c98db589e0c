// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics, and request timeouts.
package middleware

import (
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency, and
// in-flight gauge. A request that never writes a status is counted under
// metrics.DefaultStatus.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			tracker := m.Track(r.Method, normalizePath(r.URL.Path))
			defer tracker.Done()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			tracker.Status(sw.status)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// unmatchedPath labels every request outside the service's routes.
const unmatchedPath = "unmatched"

// normalizePath maps a request path onto the fixed route set so label
// cardinality stays bounded whatever clients send.
func normalizePath(path string) string {
	switch {
	case path == "/items" || path == "/items/":
		return "/items"
	case strings.HasPrefix(path, "/items/"):
		return "/items/{id}"
	case path == "/health", path == "/health/live", path == "/health/ready", path == "/metrics":
		return path
	default:
		return unmatchedPath
	}
}
