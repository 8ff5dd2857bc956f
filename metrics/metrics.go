package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager holds the pipeline's Prometheus series. A nil *Manager is valid and
// records nothing, which keeps tests and the CLI free of registry wiring.
type Manager struct {
	Registry              *prometheus.Registry
	GenerationRequests    *prometheus.CounterVec
	ModerationVerdicts    *prometheus.CounterVec
	SubmissionTransitions *prometheus.CounterVec
	HTTPLatency           *prometheus.HistogramVec
}

// New registers all series under namespace on a private registry.
func New(namespace string) *Manager {
	registry := prometheus.NewRegistry()

	generation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_requests_total",
		Help:      "Description generation requests by outcome (ok, fallback).",
	}, []string{"outcome"})
	moderation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moderation_verdicts_total",
		Help:      "Moderation verdicts by result (safe, unsafe, fail_open).",
	}, []string{"verdict"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submission_transitions_total",
		Help:      "Submission state machine transitions by target state.",
	}, []string{"state"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Latency of API requests by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	registry.MustRegister(
		generation,
		moderation,
		submissions,
		latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Manager{
		Registry:              registry,
		GenerationRequests:    generation,
		ModerationVerdicts:    moderation,
		SubmissionTransitions: submissions,
		HTTPLatency:           latency,
	}
}

func (m *Manager) Generation(outcome string) {
	if m == nil {
		return
	}
	m.GenerationRequests.WithLabelValues(outcome).Inc()
}

func (m *Manager) Moderation(verdict string) {
	if m == nil {
		return
	}
	m.ModerationVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Manager) Submission(state string) {
	if m == nil {
		return
	}
	m.SubmissionTransitions.WithLabelValues(state).Inc()
}

func (m *Manager) ObserveHTTP(route, method string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

// Handler exposes the registry for scraping.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
