// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics, and request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/metrics"
)

// unmatchedRoute labels requests that no registered pattern serves.
const unmatchedRoute = "unmatched"

// Router reports the registered pattern that serves a request.
// *http.ServeMux satisfies it.
type Router interface {
	Handler(r *http.Request) (http.Handler, string)
}

// Metrics returns middleware that records HTTP request count, latency, and
// in-flight gauge. Requests are labelled by route pattern, never by raw
// path, so parameterised and unknown paths cannot grow the series count.
// router may be nil when the middleware wraps the mux directly.
func Metrics(m *metrics.Metrics, router Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := routeLabel(r, router)
			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()
			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(time.Since(start).Seconds())
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

// routeLabel prefers the pattern ServeMux stored on r, then asks router.
// The method prefix of a pattern is dropped; it has its own label.
func routeLabel(r *http.Request, router Router) string {
	pattern := r.Pattern
	if pattern == "" && router != nil {
		_, pattern = router.Handler(r)
	}
	if pattern == "" {
		return unmatchedRoute
	}
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	return pattern
}
