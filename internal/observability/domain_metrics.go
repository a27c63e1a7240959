package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_llm_calls_total",
			Help: "Total number of model invocations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	llmRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_llm_retries_total",
			Help: "Total number of retried model call attempts.",
		},
		[]string{"operation"},
	)
	llmPermitWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_llm_permit_wait_seconds",
			Help:    "Time spent waiting for a concurrency permit.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
	)
	llmPermitTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_llm_permit_timeouts_total",
			Help: "Total number of permit acquisitions that timed out.",
		},
	)
	intentDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_intent_decisions_total",
			Help: "Intent classifier decisions by deciding signal.",
		},
		[]string{"signal"},
	)
	sqlRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_sql_rejections_total",
			Help: "SQL statements vetoed by the safety gate, by reason.",
		},
		[]string{"reason"},
	)
	historyPersistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_history_persist_failures_total",
			Help: "Conversation turns that failed to persist (swallowed).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		llmCallsTotal,
		llmRetriesTotal,
		llmPermitWaitSeconds,
		llmPermitTimeoutsTotal,
		intentDecisionsTotal,
		sqlRejectionsTotal,
		historyPersistFailuresTotal,
	)
}

func ObserveLLMCall(operation, outcome string) {
	llmCallsTotal.WithLabelValues(operation, outcome).Inc()
}

func ObserveLLMRetry(operation string) {
	llmRetriesTotal.WithLabelValues(operation).Inc()
}

func ObservePermitWait(elapsed time.Duration) {
	llmPermitWaitSeconds.Observe(elapsed.Seconds())
}

func IncrementPermitTimeout() {
	llmPermitTimeoutsTotal.Inc()
}

func ObserveIntentDecision(signal string) {
	intentDecisionsTotal.WithLabelValues(signal).Inc()
}

func ObserveSQLRejection(reason string) {
	sqlRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncrementHistoryPersistFailure() {
	historyPersistFailuresTotal.Inc()
}
