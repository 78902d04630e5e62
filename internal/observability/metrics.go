package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	dealPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "salesops",
		Subsystem: "persistence",
		Name:      "last_deal_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent deal persisted to Postgres.",
	})
	taskPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "salesops",
		Subsystem: "persistence",
		Name:      "last_task_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent task persisted to Postgres.",
	})
	stageTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesops",
		Subsystem: "pipeline",
		Name:      "stage_transitions_total",
		Help:      "Number of committed deal stage transitions, labeled by target stage.",
	}, []string{"target"})
	boardRollbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesops",
		Subsystem: "board",
		Name:      "rollbacks_total",
		Help:      "Number of optimistic board moves reverted after a persist failure, labeled by board.",
	}, []string{"board"})
)

func init() {
	prometheus.MustRegister(dealPersistGauge, taskPersistGauge, stageTransitionCounter, boardRollbackCounter)
}

// RecordDealPersisted updates the deal persistence watermark gauge.
func RecordDealPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	dealPersistGauge.Set(float64(ts.Unix()))
}

// RecordTaskPersisted updates the task persistence watermark gauge.
func RecordTaskPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	taskPersistGauge.Set(float64(ts.Unix()))
}

// RecordStageTransition counts a committed transition into the target stage.
func RecordStageTransition(target string) {
	stageTransitionCounter.WithLabelValues(target).Inc()
}

// RecordBoardRollback counts an optimistic move reverted on failure.
func RecordBoardRollback(board string) {
	boardRollbackCounter.WithLabelValues(board).Inc()
}
