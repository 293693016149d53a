package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowpilot-io/durable"
)

// ErrInvalidCronSpec is returned when a trigger's schedule cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Trigger submits a workflow run on a cron schedule. Each firing is an
// independent StartWorkflow call; a slow or failed run never blocks the
// next firing.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	workflow string
	input    []byte
	engine   durable.Engine
	logger   *slog.Logger
}

// NewTrigger parses the trigger's schedule, a standard 5-field cron
// expression (minute, hour, day, month, weekday).
func NewTrigger(cfg TriggerConfig, eng durable.Engine, logger *slog.Logger) (*Trigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCronSpec, cfg.Schedule, err)
	}
	input, err := cfg.InputJSON()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		spec:     cfg.Schedule,
		schedule: schedule,
		workflow: cfg.Workflow,
		input:    input,
		engine:   eng,
		logger:   logger,
	}, nil
}

// NextRun returns the next scheduled firing from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

// Start launches the scheduling loop in a goroutine. It returns immediately;
// the goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.schedule.Next(time.Now())
		t.logger.Debug("trigger sleeping",
			"workflow", t.workflow, "schedule", t.spec, "next_run", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		runID, err := t.engine.StartWorkflow(ctx, t.workflow, t.input)
		if err != nil {
			t.logger.Error("scheduled run failed to start",
				"workflow", t.workflow, "schedule", t.spec, "error", err)
			continue
		}
		t.logger.Info("scheduled run started",
			"workflow", t.workflow, "schedule", t.spec, "run_id", runID)
	}
}

// StartTriggers parses and starts every configured trigger. On a parse
// error nothing is started.
func StartTriggers(ctx context.Context, cfgs []TriggerConfig, eng durable.Engine, logger *slog.Logger) ([]*Trigger, error) {
	triggers := make([]*Trigger, 0, len(cfgs))
	for _, cfg := range cfgs {
		tr, err := NewTrigger(cfg, eng, logger)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, tr)
	}
	for _, tr := range triggers {
		tr.Start(ctx)
		tr.logger.Info("trigger registered",
			"workflow", tr.workflow, "schedule", tr.spec, "next_run", tr.NextRun())
	}
	return triggers, nil
}
