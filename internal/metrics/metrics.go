// Package metrics exposes prometheus instrumentation for the capture
// and transcription pipeline and for the optional status HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dictate"

// Capture / transcription counters (incremented by the control loop).
var (
	SessionsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_sessions_started_total",
		Help:      "Total capture sessions started.",
	})

	SessionsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_sessions_completed_total",
		Help:      "Total capture sessions finalized into an audio blob.",
	})

	TranscriptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcriptions_total",
		Help:      "Transcription attempts by backend and outcome.",
	}, []string{"backend", "outcome"})

	TranscriptionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_duration_seconds",
		Help:      "Transcription attempt duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	ProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probes_total",
		Help:      "Connectivity probes by result.",
	}, []string{"result"})
)

// HTTP metrics (incremented by middleware on the status server).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

func init() {
	prometheus.MustRegister(
		SessionsStartedTotal,
		SessionsCompletedTotal,
		TranscriptionsTotal,
		TranscriptionDuration,
		ProbesTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ObserveProbe records one connectivity probe result.
func ObserveProbe(reachable bool) {
	result := "reachable"
	if !reachable {
		result = "unreachable"
	}
	ProbesTotal.WithLabelValues(result).Inc()
}

// ObserveTranscription records one transcription attempt.
func ObserveTranscription(backend string, succeeded bool, dur time.Duration) {
	outcome := "ok"
	if !succeeded {
		outcome = "failed"
	}
	TranscriptionsTotal.WithLabelValues(backend, outcome).Inc()
	TranscriptionDuration.WithLabelValues(backend).Observe(dur.Seconds())
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality
// explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		method := r.Method
		status := strconv.Itoa(sw.status)

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
