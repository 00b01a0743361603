package studykit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykit",
			Name:      "sessions_started_total",
			Help:      "Activity sessions launched, by kind.",
		},
		[]string{"kind"},
	)

	sessionsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studykit",
			Name:      "sessions_completed_total",
			Help:      "Activity sessions that reached a final result, by kind.",
		},
		[]string{"kind"},
	)
)
