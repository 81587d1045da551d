// Package telemetry exposes the engine's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cadence"

type Metrics struct {
	TasksCreated       prometheus.Counter
	TasksCompleted     prometheus.Counter
	TasksSkipped       *prometheus.CounterVec
	LaunchesStarted    prometheus.Counter
	LaunchesFailed     prometheus.Counter
	LeadLaunchFailures prometheus.Counter
	LaunchDuration     prometheus.Histogram
	Recalculations     prometheus.Counter
	TodayQueueSize     *prometheus.GaugeVec
	CRMMirrorFailures  prometheus.Counter
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks created for leads entering a node.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Tasks marked completed.",
		}),
		TasksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_skipped_total",
			Help:      "Tasks skipped, by reason.",
		}, []string{"reason"}),
		LaunchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_started_total",
			Help:      "Cadence launches accepted.",
		}),
		LaunchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_failed_total",
			Help:      "Cadence launches reverted to their previous status.",
		}),
		LeadLaunchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_launch_failures_total",
			Help:      "Leads that could not be started during a bulk launch.",
		}),
		LaunchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Duration of bulk launch fan-outs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Recalculations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_recalculations_total",
			Help:      "Daily queue recalculations.",
		}),
		TodayQueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "today_queue_size",
			Help:      "Tasks in the daily queue after the last recalculation, by priority.",
		}, []string{"priority"}),
		CRMMirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crm_mirror_failures_total",
			Help:      "CRM mirror calls that failed.",
		}),
	}

	reg.MustRegister(
		m.TasksCreated,
		m.TasksCompleted,
		m.TasksSkipped,
		m.LaunchesStarted,
		m.LaunchesFailed,
		m.LeadLaunchFailures,
		m.LaunchDuration,
		m.Recalculations,
		m.TodayQueueSize,
		m.CRMMirrorFailures,
	)

	return m
}
