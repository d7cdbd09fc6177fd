// Package metrics holds the Prometheus metrics exposed at /metrics:
// request counts/durations by method and status, and live pool
// connection gauges.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/metamcp/metamcp/internal/pool"
)

// Metrics holds every Prometheus metric this process exposes.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers every metric with reg, including the pool's
// idle/active connection gauges, which are polled via p.Stats() each
// scrape rather than updated on every pool operation.
func New(reg prometheus.Registerer, p *pool.Pool) *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metamcp",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "metamcp",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "metamcp",
		Name:      "pool_idle_connections",
		Help:      "Number of warm idle upstream connections held by the pool",
	}, func() float64 {
		idle, _ := p.Stats()
		return float64(idle)
	})
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "metamcp",
		Name:      "pool_active_connections",
		Help:      "Number of upstream connections currently owned by a session",
	}, func() float64 {
		_, active := p.Stats()
		return float64(active)
	})

	return m
}

// Middleware records RequestDuration/RequestsTotal for every request
// except /metrics itself. Must wrap the outermost handler to capture
// total request duration, matching the teacher's MetricsMiddleware.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			method := r.Method
			status := statusToLabel(wrapped.status)

			m.RequestDuration.WithLabelValues(method).Observe(duration)
			m.RequestsTotal.WithLabelValues(method, status).Inc()
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code
// written, defaulting to 200 if the handler never calls WriteHeader.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter, required for SSE
// connections to keep working through this middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusToLabel collapses an HTTP status code to a low-cardinality label.
func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
