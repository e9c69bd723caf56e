// Package metrics defines the Prometheus metric collectors used across the
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup result labels.
const (
	ResultHit      = "hit"
	ResultNoSignal = "no_signal"
)

// Injection stage outcome labels.
const (
	OutcomeAnnotated   = "annotated"
	OutcomeUnannotated = "unannotated"
	OutcomePassthrough = "passthrough"
	OutcomeFailedOpen  = "failed_open"
)

// Metrics holds all Prometheus collectors for the context engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	LookupsTotal         *prometheus.CounterVec
	LookupLatency        prometheus.Histogram
	LookupMatches        prometheus.Histogram
	UnitsProcessedTotal  *prometheus.CounterVec
	StreamMessagesTotal  *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CacheErrorsTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
	CorpusDocuments      prometheus.Gauge
	CorpusTerms          prometheus.Gauge
}

// New creates all collectors and registers them with reg. Services pass
// prometheus.DefaultRegisterer; tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knowledge_lookups_total",
				Help: "Knowledge lookups by result (hit, no_signal).",
			},
			[]string{"result"},
		),
		LookupLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knowledge_lookup_latency_seconds",
				Help:    "Time spent ranking the corpus for one lookup.",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01},
			},
		),
		LookupMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knowledge_lookup_matches",
				Help:    "Number of documents joined into the context block per lookup.",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		UnitsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_injection_units_total",
				Help: "Units handled by the context-injection stage by outcome.",
			},
			[]string{"outcome"},
		),
		StreamMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_messages_total",
				Help: "Kafka messages handled by the annotator by status.",
			},
			[]string{"status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lookup_cache_hits_total",
				Help: "Total number of lookup cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lookup_cache_misses_total",
				Help: "Total number of lookup cache misses.",
			},
		),
		CacheErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lookup_cache_errors_total",
				Help: "Redis failures absorbed by the lookup cache.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "knowledge_corpus_documents",
				Help: "Documents in the loaded knowledge corpus.",
			},
		),
		CorpusTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "knowledge_corpus_terms",
				Help: "Distinct terms in the loaded knowledge corpus.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LookupsTotal,
		m.LookupLatency,
		m.LookupMatches,
		m.UnitsProcessedTotal,
		m.StreamMessagesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.CircuitBreakerState,
		m.CorpusDocuments,
		m.CorpusTerms,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
