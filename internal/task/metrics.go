package task

import (
	"time"

	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tasksProcessedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vendorflow",
		Subsystem: "dispatcher",
		Name:      "tasks_processed_total",
		Help:      "Number of claimed tasks by type and outcome.",
	}, []string{"type", "outcome"})

	handlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vendorflow",
		Subsystem: "dispatcher",
		Name:      "handler_duration_seconds",
		Help:      "Time spent inside task handlers.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"type"})

	claimConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vendorflow",
		Subsystem: "dispatcher",
		Name:      "claim_conflicts_total",
		Help:      "Claims lost to another worker or skipped because the vendor was leased.",
	})

	cycleErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vendorflow",
		Subsystem: "dispatcher",
		Name:      "cycle_errors_total",
		Help:      "Dispatch cycles that returned infrastructure errors.",
	})

	lastCycleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vendorflow",
		Subsystem: "dispatcher",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed dispatch cycle.",
	})

	reapedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vendorflow",
		Subsystem: "reaper",
		Name:      "claims_released_total",
		Help:      "Stuck claims returned to the queue or failed by the reaper.",
	})
)

func init() {
	prometheus.MustRegister(
		tasksProcessedCounter,
		handlerDuration,
		claimConflictCounter,
		cycleErrorCounter,
		lastCycleGauge,
		reapedCounter,
	)
}

func recordOutcome(taskType domain.TaskType, outcome string) {
	tasksProcessedCounter.WithLabelValues(string(taskType), outcome).Inc()
}

func observeHandler(taskType domain.TaskType, d time.Duration) {
	handlerDuration.WithLabelValues(string(taskType)).Observe(d.Seconds())
}

func recordCycle(now time.Time, err error) {
	if err != nil {
		cycleErrorCounter.Inc()
		return
	}
	lastCycleGauge.Set(float64(now.Unix()))
}
