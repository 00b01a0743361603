package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outcomeTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "studykit",
		Subsystem: "cache",
		Name:      "content_loads_total",
		Help:      "Content loads by outcome (hit, fresh, stale_fallback, unavailable).",
	},
	[]string{"outcome"},
)
