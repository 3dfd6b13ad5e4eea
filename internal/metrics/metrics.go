package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterspot_predictions_total",
			Help: "Total water quality scores computed, by label",
		},
		[]string{"label"},
	)

	RowsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterspot_rows_committed_total",
			Help: "Total bulk rows successfully stored",
		},
	)

	RowsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterspot_rows_failed_total",
			Help: "Total bulk rows rejected during commit",
		},
	)

	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterspot_validation_errors_total",
			Help: "Total field errors found while validating bulk files",
		},
		[]string{"field"},
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waterspot_upload_duration_seconds",
			Help:    "Time to commit one bulk upload",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterspot_dataset_fetches_total",
			Help: "Total remote dataset fetch attempts",
		},
		[]string{"scheme", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waterspot_dataset_fetch_latency_seconds",
			Help:    "Remote dataset fetch latency in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterspot_http_requests_total",
			Help: "Total API requests by route and status",
		},
		[]string{"route", "status"},
	)
)
