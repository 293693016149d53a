package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowpilot-io/durable"
)

// Activity names. Workflow logic refers to these, so they are part of a
// run's recorded history: renaming one breaks replay of old runs.
const (
	ActivityDecideAction    = "decide-action"
	ActivityExecuteCommand  = "execute-command"
	ActivityTranslateReport = "translate-report"
	ActivityRenderDiagram   = "render-diagram"
	ActivitySpeakAlert      = "speak-alert"
	ActivityRecordEval      = "record-eval"
)

// LockClassVoice serializes audible alerts: two voice activities never talk
// over each other, regardless of how many workers are running.
const LockClassVoice = "voice"

// DecisionResult is the output of decide-action.
type DecisionResult struct {
	Action  string `json:"action"`
	Command string `json:"command,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// CommandRequest is the input to execute-command.
type CommandRequest struct {
	Command string `json:"command"`
	Service string `json:"service,omitempty"`
}

// CommandResult is the output of execute-command.
type CommandResult struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

// Activities holds the handlers for the diagnose pipeline. All of them are
// demo stand-ins for real integrations (model inference, kubectl, a
// translation API, diagram rendering, speech synthesis, an eval store); the
// engine only ever sees named operations over opaque bytes.
type Activities struct {
	Logger *slog.Logger
}

// NewActivities creates the handler set. If logger is nil, slog.Default()
// is used.
func NewActivities(logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{Logger: logger}
}

// remediable lists metric patterns the decision model treats as worth a
// reboot. Everything else is ignored.
var remediable = []string{"memory-leak", "oom", "crash-loop", "cpu-throttle"}

// DecideAction is the mocked model-inference step: given the alert, decide
// whether to reboot the service or ignore the alarm.
func (a *Activities) DecideAction(ctx context.Context, req durable.ActivityRequest) ([]byte, error) {
	var alert Alert
	if err := json.Unmarshal(req.Input, &alert); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}

	decision := DecisionResult{Action: DecisionIgnore, Reason: "metric not remediable"}
	metric := strings.ToLower(alert.Metric)
	for _, pattern := range remediable {
		if strings.Contains(metric, pattern) {
			service := alert.Service
			if service == "" {
				service = "payments-1"
			}
			decision = DecisionResult{
				Action:  DecisionReboot,
				Command: fmt.Sprintf("kubectl rollout restart deployment/%s", service),
				Reason:  fmt.Sprintf("metric %q matches %q", alert.Metric, pattern),
			}
			break
		}
	}

	a.Logger.InfoContext(ctx, "decision made",
		slog.String("run_id", req.RunID),
		slog.String("metric", alert.Metric),
		slog.String("action", decision.Action),
	)
	return json.Marshal(decision)
}

// ExecuteCommand is the simulated remediation step. A real deployment would
// shell out to kubectl here; the demo pretends the restart took a moment and
// succeeded.
func (a *Activities) ExecuteCommand(ctx context.Context, req durable.ActivityRequest) ([]byte, error) {
	var cmd CommandRequest
	if err := json.Unmarshal(req.Input, &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	a.Logger.InfoContext(ctx, "command executed",
		slog.String("run_id", req.RunID),
		slog.String("command", cmd.Command),
		slog.Int("attempt", req.Attempt),
	)
	return json.Marshal(CommandResult{
		Command: cmd.Command,
		Output:  "deployment restarted",
		Success: true,
	})
}

// translations is the canned dictionary standing in for a translation API.
var translations = map[string]string{
	"fr": "Incident résolu",
	"de": "Vorfall behoben",
}

// TranslateReport renders the incident summary in each target language.
func (a *Activities) TranslateReport(ctx context.Context, req durable.ActivityRequest) ([]byte, error) {
	var report Report
	if err := json.Unmarshal(req.Input, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	out := make(map[string]string, len(translations))
	for lang, text := range translations {
		out[lang] = fmt.Sprintf("%s: %s (%s)", text, report.Metric, report.Decision)
	}
	return json.Marshal(out)
}

// RenderDiagram produces the incident timeline diagram. The real thing
// called a rendering service; the demo emits ASCII.
func (a *Activities) RenderDiagram(ctx context.Context, req durable.ActivityRequest) ([]byte, error) {
	var report Report
	if err := json.Unmarshal(req.Input, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	diagram := fmt.Sprintf(`
+--------+     +--------+     +-----------+
| alert  | --> | decide | --> | %-9s |
+--------+     +--------+     +-----------+
   %s
`, report.Decision, report.Metric)
	return []byte(diagram), nil
}

// SpeakAlert is the voice synthesis step. It registers with the "voice"
// lock class so concurrent runs never talk over each other.
func (a *Activities) SpeakAlert(ctx context.Context, req durable.ActivityRequest) ([]byte, error) {
	var report Report
	if err := json.Unmarshal(req.Input, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}

	// Simulated playback time; the lock class makes this the serialization
	// point for all audible alerts.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	a.Logger.InfoContext(ctx, "alert spoken",
		slog.String("run_id", req.RunID),
		slog.String("metric", report.Metric),
		slog.String("decision", report.Decision),
	)
	return []byte(`{"spoken":true}`), nil
}

// RecordEval appends the run outcome to the evaluation log.
func (a *Activities) RecordEval(ctx context.Context, req durable.ActivityRequest) ([]byte, error) {
	var report Report
	if err := json.Unmarshal(req.Input, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	a.Logger.InfoContext(ctx, "eval recorded",
		slog.String("run_id", req.RunID),
		slog.String("metric", report.Metric),
		slog.String("decision", report.Decision),
		slog.Bool("success", report.Success),
	)
	return []byte(`{"recorded":true}`), nil
}

// Registry returns the full registration set for the diagnose pipeline,
// ready to apply to an engine.
func Registry(logger *slog.Logger) *durable.RegistrySet {
	acts := NewActivities(logger)
	return durable.NewRegistrySet().
		Workflow(WorkflowType, Diagnose).
		Activity(ActivityDecideAction, acts.DecideAction, nil).
		ActivityWithOptions(ActivityExecuteCommand, acts.ExecuteCommand, durable.ActivityOptions{
			Timeout: 30 * time.Second,
		}).
		ActivityWithOptions(ActivityTranslateReport, acts.TranslateReport, durable.ActivityOptions{
			Retry: retryPtr(durable.Retry(3).WithConstantBackoff(time.Second).Policy()),
		}).
		Activity(ActivityRenderDiagram, acts.RenderDiagram, nil).
		ActivityWithOptions(ActivitySpeakAlert, acts.SpeakAlert, durable.ActivityOptions{
			LockClass: LockClassVoice,
			Timeout:   15 * time.Second,
		}).
		Activity(ActivityRecordEval, acts.RecordEval, nil)
}

func retryPtr(p durable.RetryPolicy) *durable.RetryPolicy { return &p }
