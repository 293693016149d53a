package durable

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalRunnerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runner := NewLocalRunner()

	double := func(ctx context.Context, req ActivityRequest) ([]byte, error) {
		var n int
		if err := json.Unmarshal(req.Input, &n); err != nil {
			return nil, err
		}
		return json.Marshal(n * 2)
	}
	wf := func(wc *WorkflowContext, input []byte) ([]byte, error) {
		out, err := wc.Execute("double", input)
		if err != nil {
			return nil, err
		}
		return wc.Execute("double", out)
	}

	require.NoError(t, runner.Engine.RegisterWorkflow("quadruple", wf))
	require.NoError(t, runner.Engine.RegisterActivity("double", double, nil))

	require.NoError(t, runner.StartWorkers(ctx, 2))
	defer runner.Stop()

	runID, err := runner.Engine.StartWorkflow(ctx, "quadruple", []byte("3"))
	require.NoError(t, err)

	run, err := runner.WaitForRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, run.Status)
	require.Equal(t, "12", string(run.Output))
}

func TestLocalRunnerStartWorkersTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := NewLocalRunner()
	require.NoError(t, runner.StartWorkers(ctx, 1))
	defer runner.Stop()

	require.Error(t, runner.StartWorkers(ctx, 1))
}

func TestLocalRunnerStopIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := NewLocalRunner()
	require.NoError(t, runner.StartWorkers(ctx, 1))
	runner.Stop()
	runner.Stop()

	// A stopped runner can be started again.
	require.NoError(t, runner.StartWorkers(ctx, 1))
	runner.Stop()
}

func TestLocalRunnerWaitForRunRespectsContext(t *testing.T) {
	runner := NewLocalRunner()

	wf := func(wc *WorkflowContext, input []byte) ([]byte, error) {
		return wc.Execute("never-runs", input)
	}
	noop := func(ctx context.Context, req ActivityRequest) ([]byte, error) {
		return nil, nil
	}
	require.NoError(t, runner.Engine.RegisterWorkflow("stuck", wf))
	require.NoError(t, runner.Engine.RegisterActivity("never-runs", noop, nil))

	// No workers started: the run can never progress.
	runID, err := runner.Engine.StartWorkflow(context.Background(), "stuck", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	run, err := runner.WaitForRun(ctx, runID)
	require.Error(t, err)
	require.Equal(t, StatusRunning, run.Status)
}
