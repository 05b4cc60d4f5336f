package observer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	runsTotal       *prometheus.CounterVec
	verdictsTotal   *prometheus.CounterVec
	operationsTotal *prometheus.CounterVec
	conflictsTotal  prometheus.Counter
	duplicatesTotal prometheus.Counter

	runDuration *prometheus.HistogramVec

	lastRun     prometheus.Gauge
	runInFlight prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asset_scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduler runs by mode and end status.",
		}, []string{"mode", "status"}),
		verdictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asset_scheduler",
			Name:      "verdicts_total",
			Help:      "Total number of validation verdicts by status.",
		}, []string{"status"}),
		operationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asset_scheduler",
			Name:      "operations_total",
			Help:      "Total number of executed operations by action and verified status.",
		}, []string{"action", "status"}),
		conflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "asset_scheduler",
			Name:      "conflicts_total",
			Help:      "Total number of verdicts escalated by cross-row conflict detection.",
		}),
		duplicatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "asset_scheduler",
			Name:      "duplicates_total",
			Help:      "Total number of operations dropped as duplicates.",
		}),
		runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "asset_scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduler runs.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		lastRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "asset_scheduler",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		runInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "asset_scheduler",
			Name:      "run_in_flight",
			Help:      "Whether a run is currently in progress (1/0).",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
