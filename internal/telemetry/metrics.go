// Package telemetry holds the Prometheus metrics exported on /metrics.
//
// HTTP metrics are labelled by chi route pattern (e.g. /admin/users/{id}),
// never the raw URL, to keep label cardinality bounded.
package telemetry

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weatherhub"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed, by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latencies, by method and route pattern.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Credential outcomes. The result label is one of the Result* constants.
var (
	CredentialVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_verifications_total",
			Help:      "API key verifications, by result.",
		},
		[]string{"result"},
	)

	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_token_verifications_total",
			Help:      "Session token verifications, by result.",
		},
		[]string{"result"},
	)

	QuotaConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_consumed_total",
			Help:      "Units of API key quota consumed by successful verifications.",
		},
	)
)

const (
	ResultOK            = "ok"
	ResultUnauthorized  = "unauthorized"
	ResultForbidden     = "forbidden"
	ResultQuotaExceeded = "quota_exceeded"
	ResultMalformed     = "malformed"
	ResultError         = "error"
)

// Crawler metrics.
var (
	CrawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawler_pages_total",
			Help:      "Monthly history pages fetched, by result.",
		},
		[]string{"result"},
	)

	CrawlerRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawler_records_total",
			Help:      "Weather records parsed from fetched pages.",
		},
	)
)

// RegisterDBStats exposes connection pool statistics for db under the given
// name. Registering the same name twice is a no-op.
func RegisterDBStats(db *sql.DB, name string) error {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
