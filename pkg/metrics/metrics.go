// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ytwarehouse"

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information of the ingester.",
	}, []string{"version", "commit", "date"})

	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_retries_total",
		Help:      "Remote API calls retried after a transient status code.",
	}, []string{"operation", "status"})

	APIFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_failures_total",
		Help:      "Remote API calls that failed for good.",
	}, []string{"operation", "status"})

	RowsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_upserted_total",
		Help:      "Rows written through the upsert store, by table.",
	}, []string{"table"})

	RetentionRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retention_rows_total",
		Help:      "Rows touched by retention maintenance.",
	}, []string{"operation"})

	ChannelRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_runs_total",
		Help:      "Per-channel ingest outcomes.",
	}, []string{"result"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full ingest run.",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
	})

	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last ingest run finished.",
	})
)
