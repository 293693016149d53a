package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnRunStart is called once when a run is submitted, after its
	// WorkflowStarted event is durable.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunCompleted is called when a run reaches StatusCompleted.
	OnRunCompleted(ctx context.Context, run *Run)

	// OnRunFailed is called when a run transitions to StatusFailed or
	// StatusTerminated.
	OnRunFailed(ctx context.Context, run *Run, err error)

	// OnActivityStart is called before invoking an activity handler.
	OnActivityStart(ctx context.Context, runID, name string, attempt int)

	// OnActivityCompleted is called after an activity attempt resolves, for
	// both successes and failures (err != nil).
	OnActivityCompleted(ctx context.Context, runID, name string, attempt int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)                {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *Run)            {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *Run, err error)    {}
func (NoopObserver) OnActivityStart(ctx context.Context, runID, name string, attempt int) {
}
func (NoopObserver) OnActivityCompleted(ctx context.Context, runID, name string, attempt int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnActivityStart(ctx context.Context, runID, name string, attempt int) {
	for _, o := range c.observers {
		o.OnActivityStart(ctx, runID, name, attempt)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, runID, name string, attempt int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, runID, name, attempt, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / activity lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("workflow_type", run.WorkflowType),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("workflow_type", run.WorkflowType),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("workflow_type", run.WorkflowType),
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnActivityStart(ctx context.Context, runID, name string, attempt int) {
	o.Logger.DebugContext(ctx, "activity_start",
		slog.String("run_id", runID),
		slog.String("activity", name),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, runID, name string, attempt int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "activity_completed",
		slog.String("run_id", runID),
		slog.String("activity", name),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate activity durations
// without any external dependency. It implements Observer and can be combined
// with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted      atomic.Int64
	runsCompleted    atomic.Int64
	runsFailed       atomic.Int64
	activityAttempts atomic.Int64
	activityFailures atomic.Int64
	totalActivityDur atomic.Int64 // nanoseconds across successful attempts
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsInFlight  int64

	ActivityAttempts    int64
	ActivityFailures    int64
	AvgActivityDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *Run) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *Run, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnActivityCompleted(ctx context.Context, runID, name string, attempt int, err error, d time.Duration) {
	m.activityAttempts.Add(1)
	if err != nil {
		m.activityFailures.Add(1)
		return
	}
	m.totalActivityDur.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	attempts := m.activityAttempts.Load()
	failures := m.activityFailures.Load()
	totalNs := m.totalActivityDur.Load()

	var avg time.Duration
	if ok := attempts - failures; ok > 0 {
		avg = time.Duration(totalNs / ok)
	}

	return BasicMetricsSnapshot{
		RunsStarted:         started,
		RunsCompleted:       completed,
		RunsFailed:          failed,
		RunsInFlight:        started - completed - failed,
		ActivityAttempts:    attempts,
		ActivityFailures:    failures,
		AvgActivityDuration: avg,
	}
}
