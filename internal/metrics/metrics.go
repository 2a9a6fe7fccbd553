// Package metrics provides Prometheus metrics for the account security API
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accountsec",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "accountsec",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

var (
	// TwoFactorVerificationsTotal counts 2FA verification attempts by
	// method (totp, backup_code) and result (success, failure)
	TwoFactorVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accountsec",
			Subsystem: "twofa",
			Name:      "verifications_total",
			Help:      "Total number of 2FA verification attempts by method and result",
		},
		[]string{"method", "result"},
	)

	// SessionsCreatedTotal counts created sessions
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "accountsec",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		},
	)

	// SessionsTerminatedTotal counts terminated sessions
	SessionsTerminatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "accountsec",
			Subsystem: "sessions",
			Name:      "terminated_total",
			Help:      "Total number of sessions terminated",
		},
	)

	// AuditEventsTotal counts recorded audit events by action and risk level
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accountsec",
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events recorded by action and risk level",
		},
		[]string{"action", "risk_level"},
	)

	// BruteForceBlocksTotal counts brute-force checks that reported blocked
	BruteForceBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "accountsec",
			Subsystem: "audit",
			Name:      "brute_force_blocks_total",
			Help:      "Total number of brute-force checks that found the account blocked",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments HTTP requests with request count and duration.
// The route pattern, not the raw URL, is used as the path label to keep
// cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the response status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
