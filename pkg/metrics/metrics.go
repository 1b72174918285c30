// Package metrics exposes the Prometheus counters and gauges the event
// buffer, detection engine, correlation engine, alert generator, and
// scheduler update as they run, plus the HTTP handler that serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event buffer metrics.
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineld_events_published_total",
			Help: "Total number of entries published to a stream, by stream and outcome",
		},
		[]string{"stream", "outcome"},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineld_events_consumed_total",
			Help: "Total number of entries consumed from a stream, by stream and outcome",
		},
		[]string{"stream", "outcome"},
	)

	StreamLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentineld_stream_lag",
			Help: "Number of entries in a stream not yet delivered to any consumer",
		},
		[]string{"stream"},
	)

	StreamPendingTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentineld_stream_pending_total",
			Help: "Number of entries in a stream's pending entries list",
		},
		[]string{"stream"},
	)

	BackpressureActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentineld_backpressure_active",
			Help: "Whether a stream's backpressure policy is currently shedding or rejecting writes (1) or not (0)",
		},
		[]string{"stream"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineld_dead_letters_total",
			Help: "Total number of entries moved to the dead-letter stream, by source stream",
		},
		[]string{"stream"},
	)

	// Detection engine metrics.
	RuleExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineld_rule_executions_total",
			Help: "Total number of scheduled rule executions, by status",
		},
		[]string{"status"},
	)

	RuleExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentineld_rule_execution_duration_seconds",
			Help:    "Time taken to execute a scheduled detection rule",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dialect"},
	)

	RuleHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineld_rule_hits_total",
			Help: "Total number of matching events returned across rule executions",
		},
		[]string{"rule_id"},
	)

	// Correlation engine metrics.
	CorrelationWindowsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentineld_correlation_windows_opened_total",
			Help: "Total number of correlation windows opened",
		},
	)

	CorrelationWindowsMatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentineld_correlation_windows_matched_total",
			Help: "Total number of correlation windows that completed their full sequence",
		},
	)

	CorrelationWindowsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentineld_correlation_windows_expired_total",
			Help: "Total number of correlation windows swept as expired before completing",
		},
	)

	CorrelationVersionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentineld_correlation_version_conflicts_total",
			Help: "Total number of optimistic-concurrency conflicts while advancing correlation state",
		},
	)

	// Alert generator metrics.
	AlertsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentineld_alerts_created_total",
			Help: "Total number of new alerts created",
		},
	)

	AlertsUpdatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentineld_alerts_updated_total",
			Help: "Total number of existing open alerts updated by a deduplicated match",
		},
	)

	AlertStatusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineld_alert_status_transitions_total",
			Help: "Total number of alert status transitions, by from and to status",
		},
		[]string{"from", "to"},
	)

	// Scheduler metrics.
	SchedulerIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentineld_scheduler_is_leader",
			Help: "Whether this scheduler instance currently holds the rule-dispatch leader lease (1) or not (0)",
		},
	)

	SchedulerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentineld_scheduler_queue_depth",
			Help: "Number of due rules queued for a worker but not yet picked up",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsPublishedTotal,
		EventsConsumedTotal,
		StreamLag,
		StreamPendingTotal,
		BackpressureActive,
		DeadLettersTotal,
		RuleExecutionsTotal,
		RuleExecutionDuration,
		RuleHitsTotal,
		CorrelationWindowsOpened,
		CorrelationWindowsMatched,
		CorrelationWindowsExpired,
		CorrelationVersionConflicts,
		AlertsCreatedTotal,
		AlertsUpdatedTotal,
		AlertStatusTransitionsTotal,
		SchedulerIsLeader,
		SchedulerQueueDepth,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}
