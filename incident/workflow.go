// Package incident is the demo incident-response pipeline built on the
// durable engine: an alert comes in, a decision activity picks a
// remediation, a command activity applies it, and a set of best-effort side
// activities fan the result out (translation, diagram, voice, evaluation
// log).
//
// The pipeline doubles as the engine's reference workload: it exercises
// branching on activity results, fatal versus best-effort failures, and the
// advisory lock class serializing audible alerts.
package incident

import (
	"encoding/json"
	"fmt"

	"github.com/flowpilot-io/durable"
)

// WorkflowType is the registered name of the diagnose workflow.
const WorkflowType = "diagnose"

// Decision values produced by the decide-action activity.
const (
	DecisionReboot = "REBOOT"
	DecisionIgnore = "IGNORE"
)

// Alert is the workflow input: the alarm that triggered diagnosis.
type Alert struct {
	Metric  string `json:"metric"`
	Service string `json:"service,omitempty"`
}

// Report is the workflow output.
type Report struct {
	Metric   string `json:"metric"`
	Service  string `json:"service,omitempty"`
	Decision string `json:"decision"`

	// Success is true when remediation ran and succeeded, and also when the
	// decision was to ignore (nothing to do counts as success).
	Success bool `json:"success"`

	// Notified records whether the best-effort notification fan-out
	// (translation, diagram, voice, eval log) fully succeeded. A false here
	// never fails the run.
	Notified bool `json:"notified"`
}

// Diagnose is the workflow logic. It is deterministic: all side effects and
// all randomness live in the activities.
func Diagnose(wc *durable.WorkflowContext, input []byte) ([]byte, error) {
	var alert Alert
	if err := json.Unmarshal(input, &alert); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}

	decisionRaw, err := wc.Execute(ActivityDecideAction, input)
	if err != nil {
		// No decision means no safe way forward; fatal to the run.
		return nil, err
	}
	var decision DecisionResult
	if err := json.Unmarshal(decisionRaw, &decision); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}

	report := Report{
		Metric:   alert.Metric,
		Service:  alert.Service,
		Decision: decision.Action,
		Success:  decision.Action == DecisionIgnore,
	}

	if decision.Action == DecisionReboot {
		cmdInput, err := json.Marshal(CommandRequest{
			Command: decision.Command,
			Service: alert.Service,
		})
		if err != nil {
			return nil, fmt.Errorf("encode command request: %w", err)
		}
		cmdRaw, err := wc.Execute(ActivityExecuteCommand, cmdInput)
		if err != nil {
			// Remediation is the point of the run; exhausting its retries
			// is fatal.
			return nil, err
		}
		var cmd CommandResult
		if err := json.Unmarshal(cmdRaw, &cmd); err != nil {
			return nil, fmt.Errorf("decode command result: %w", err)
		}
		report.Success = cmd.Success
	}

	// The fan-out below is best-effort: each activity may exhaust its
	// retries and the run still completes. The GivenUp outcome is observed
	// and recorded instead of being swallowed.
	report.Notified = true
	reportRaw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	for _, name := range []string{
		ActivityTranslateReport,
		ActivityRenderDiagram,
		ActivitySpeakAlert,
		ActivityRecordEval,
	} {
		if _, err := wc.Execute(name, reportRaw); err != nil {
			if _, ok := durable.IsGivenUp(err); ok {
				report.Notified = false
				continue
			}
			// Anything other than a given-up activity (in particular the
			// engine's suspension signal) must propagate unchanged.
			return nil, err
		}
	}

	return json.Marshal(report)
}
