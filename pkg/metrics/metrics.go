// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpilot-io/durable/pkg/api"
)

// Observer implements api.Observer on top of a Prometheus registry. Combine
// it with a LoggingObserver via api.NewCompositeObserver.
type Observer struct {
	api.NoopObserver

	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsFailed    *prometheus.CounterVec

	activityAttempts *prometheus.CounterVec
	activityDuration *prometheus.HistogramVec
}

// NewObserver creates an Observer and registers its collectors on reg.
// Registration panics on duplicate collectors, matching promauto behavior.
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "durable_runs_started_total",
			Help: "Workflow runs submitted.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "durable_runs_completed_total",
			Help: "Workflow runs that reached COMPLETED.",
		}),
		runsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "durable_runs_failed_total",
			Help: "Workflow runs that reached FAILED or TERMINATED.",
		}, []string{"status"}),
		activityAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "durable_activity_attempts_total",
			Help: "Activity attempts by name and outcome.",
		}, []string{"activity", "outcome"}),
		activityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "durable_activity_duration_seconds",
			Help:    "Wall time of activity attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"activity"}),
	}
	reg.MustRegister(o.runsStarted, o.runsCompleted, o.runsFailed, o.activityAttempts, o.activityDuration)
	return o
}

func (o *Observer) OnRunStart(ctx context.Context, run *api.Run) {
	o.runsStarted.Inc()
}

func (o *Observer) OnRunCompleted(ctx context.Context, run *api.Run) {
	o.runsCompleted.Inc()
}

func (o *Observer) OnRunFailed(ctx context.Context, run *api.Run, err error) {
	o.runsFailed.WithLabelValues(string(run.Status)).Inc()
}

func (o *Observer) OnActivityCompleted(ctx context.Context, runID, name string, attempt int, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.activityAttempts.WithLabelValues(name, outcome).Inc()
	o.activityDuration.WithLabelValues(name).Observe(d.Seconds())
}
