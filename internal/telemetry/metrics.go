// Package telemetry provides application-level observability for the API key service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<APIKEYS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint is NOT served by the Gin router, so it is never
// reachable through the authenticated API surface.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - API key authentication outcomes and latency
//   - API key lifecycle counters (created, revoked)
//   - API key expiry notification counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/apikeys/:id)
// rather than the raw request URL so that key ids never become label values.
// Authentication metrics are labelled by outcome only; never by user or key.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and buckets
// from 5 ms to 30 s.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics, recorded by apikeys.Service.Authenticate.
//
// APIKeyAuthAttemptsTotal is a CounterVec with label {outcome}: one of
// authenticated, no_credentials, invalid_credentials, revoked, expired, error.
// These labels are the only place the reason for a rejected request is visible
// outside the logs; HTTP clients always see the same opaque 401.
//
// Example PromQL queries:
//   - Failure ratio:   sum(rate(apikey_auth_attempts_total{outcome!="authenticated"}[5m])) / sum(rate(apikey_auth_attempts_total[5m]))
//   - Revoked-key use: increase(apikey_auth_attempts_total{outcome="revoked"}[1h]) > 0
//
// APIKeyAuthDuration is a HistogramVec with label {outcome}. Buckets are sized
// around bcrypt at cost 10–14 (roughly 50 ms to 1 s per verification). Failure
// outcomes should sit in the same buckets as successes; a gap between them
// means the no-match path is skipping its bcrypt work.
var (
	APIKeyAuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apikey_auth_attempts_total",
			Help: "Total number of API key authentication attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	APIKeyAuthDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apikey_auth_duration_seconds",
			Help:    "Duration of API key authentication attempts including bcrypt verification, by outcome.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
		},
		[]string{"outcome"},
	)
)

// Lifecycle metrics, incremented by the create and revoke commands after the
// store write succeeds.
var (
	APIKeysCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apikeys_created_total",
			Help: "Total number of API keys created.",
		},
	)

	APIKeysRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apikeys_revoked_total",
			Help: "Total number of API keys revoked.",
		},
	)
)

// APIKeyExpiryNotificationsSentTotal is a plain Counter (no labels) incremented once
// per email successfully delivered by the api_key_expiry_notifier background job.
// A stalled counter combined with api keys approaching expiry is a useful alert signal
// for SMTP delivery failures.
//
// Example PromQL queries:
//   - Rate of notifications sent:  rate(apikey_expiry_notifications_sent_total[24h])
var APIKeyExpiryNotificationsSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "apikey_expiry_notifications_sent_total",
		Help: "Total number of API key expiry warning emails successfully sent.",
	},
)

// RateLimitRejectionsTotal counts requests rejected by the rate limiter, by backend
// ("memory" or "redis").
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every interval and updates the DBOpenConnections gauge.
// The goroutine exits when ctx is cancelled or the database becomes unreachable.
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(ctx, database.DB, 30*time.Second)
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
