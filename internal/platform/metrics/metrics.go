// Package metrics exposes Prometheus collectors for the learning flow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	quizSubmissions *prometheus.CounterVec
	quizScores      prometheus.Histogram
	unlocks         prometheus.Counter
	doubts          *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		),
		quizSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_submissions_total",
				Help: "Quiz submissions by outcome",
			},
			[]string{"result"},
		),
		quizScores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quiz_score_percent",
				Help:    "Distribution of submitted quiz scores",
				Buckets: []float64{20, 40, 60, 70, 80, 90, 100},
			},
		),
		unlocks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topic_unlocks_total",
				Help: "Topics unlocked by a passing quiz",
			},
		),
		doubts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doubt_sessions_total",
				Help: "Doubt sessions submitted by resolution mode",
			},
			[]string{"mode"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_fallbacks_total",
				Help: "External generation calls that fell back to a degraded path",
			},
			[]string{"collaborator"},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.quizSubmissions,
		m.quizScores,
		m.unlocks,
		m.doubts,
		m.fallbacks,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// QuizSubmitted records one scored quiz.
func (m *Metrics) QuizSubmitted(score int, passed bool) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.quizSubmissions.WithLabelValues(result).Inc()
	m.quizScores.Observe(float64(score))
}

// TopicUnlocked records a next-topic unlock.
func (m *Metrics) TopicUnlocked() {
	if m == nil {
		return
	}
	m.unlocks.Inc()
}

// DoubtSubmitted records a new doubt session.
func (m *Metrics) DoubtSubmitted(mode string) {
	if m == nil {
		return
	}
	m.doubts.WithLabelValues(mode).Inc()
}

// Fallback records a degraded generation path for the named collaborator.
func (m *Metrics) Fallback(collaborator string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(collaborator).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer (websocket hijack).
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
