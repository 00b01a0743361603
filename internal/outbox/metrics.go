package outbox

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are intentionally simple. queueDepth is *only* updated in the worker
// goroutine, guaranteeing a single writer and eliminating race/skew concerns.
var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykit",
			Subsystem: "outbox",
			Name:      "submissions_total",
			Help:      "Writes successfully accepted for delivery.",
		},
		[]string{"shard"},
	)

	queueFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykit",
			Subsystem: "outbox",
			Name:      "queue_full_total",
			Help:      "Enqueue attempts that timed out (per-shard queue full).",
		},
		[]string{"shard"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "studykit",
			Subsystem: "outbox",
			Name:      "run_duration_seconds",
			Help:      "Write delivery latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"shard"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "studykit",
			Subsystem: "outbox",
			Name:      "queue_depth",
			Help:      "Current depth of each shard queue.",
		},
		[]string{"shard"},
	)

	writesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykit",
			Subsystem: "outbox",
			Name:      "writes_failed_total",
			Help:      "Writes abandoned after exhausting retries or hitting an irrecoverable error.",
		},
		[]string{"shard"},
	)
)

func labelFor(i int) string { return strconv.Itoa(i) }
