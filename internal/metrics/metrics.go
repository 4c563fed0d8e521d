package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokostok_sync_passes_total",
		Help: "Sync passes by kind and chosen direction",
	}, []string{"kind", "direction"})

	SyncFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokostok_sync_failures_total",
		Help: "Failed sync passes by kind and reason",
	}, []string{"kind", "reason"})

	SyncPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tokostok_sync_pass_duration_seconds",
		Help:    "Latency of one sync pass",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	SyncRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokostok_sync_rows_total",
		Help: "Rows deleted or saved by sync passes",
	}, []string{"kind", "op"})

	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokostok_store_errors_total",
		Help: "Failed local store writes by error code and kind",
	}, []string{"code", "kind"})

	VersionWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokostok_remote_version_writes_total",
		Help: "Version rows written on the remote backend",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})
)
