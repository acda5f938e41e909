package triage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
)

// Outcome is what a workflow run reports.
type Outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Workflow is one event-driven sequence of steps.
type Workflow interface {
	Name() string
	Run(ctx context.Context, runID string, event events.Event) (Outcome, error)
}

// RunStore persists run headers.
type RunStore interface {
	Begin(ctx context.Context, run domain.WorkflowRun) (*domain.WorkflowRun, error)
	Finish(ctx context.Context, id string, status domain.RunStatus, reason string) error
}

// RunRecorder counts finished runs.
type RunRecorder interface {
	RecordWorkflowRun(workflow, outcome string)
}

// Engine runs workflows under a persisted run keyed by the event id, so a
// redelivered event resumes or replays instead of starting over.
type Engine struct {
	runs    RunStore
	metrics RunRecorder
	logger  *zap.Logger
}

// NewEngine builds an engine. metrics may be nil.
func NewEngine(runs RunStore, metrics RunRecorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{runs: runs, metrics: metrics, logger: logger}
}

// Execute runs wf for event. A run that already finished returns its stored
// outcome. Cancellation leaves the run RUNNING so it can be resumed later.
func (e *Engine) Execute(ctx context.Context, wf Workflow, event events.Event) (Outcome, error) {
	run, err := e.Begin(ctx, wf, event)
	if err != nil {
		return Outcome{}, err
	}
	return e.Resume(ctx, wf, run, event)
}

// Begin records the run header for event, or loads the existing one. Once it
// returns the event is safe to acknowledge: the run is durable and the
// sweeper will pick it up if the process dies.
func (e *Engine) Begin(ctx context.Context, wf Workflow, event events.Event) (*domain.WorkflowRun, error) {
	run, err := e.runs.Begin(ctx, domain.WorkflowRun{
		ID:        event.ID,
		Workflow:  wf.Name(),
		EventName: string(event.Name),
		Payload:   event.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("begin run %s: %w", event.ID, err)
	}
	return run, nil
}

// Resume drives a run returned by Begin to a terminal status.
func (e *Engine) Resume(ctx context.Context, wf Workflow, run *domain.WorkflowRun, event events.Event) (Outcome, error) {
	if run.Status != domain.RunStatusRunning {
		e.logger.Info("run already finished",
			zap.String("run_id", run.ID),
			zap.String("workflow", wf.Name()),
			zap.String("status", string(run.Status)),
		)
		return Outcome{Success: run.Status == domain.RunStatusSucceeded, Reason: run.Reason}, nil
	}

	logger := e.logger.With(zap.String("run_id", run.ID), zap.String("workflow", wf.Name()))
	outcome, runErr := wf.Run(ctx, run.ID, event)

	status, label := domain.RunStatusSucceeded, "success"
	switch {
	case runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) && ctx.Err() != nil:
		logger.Info("run interrupted", zap.Error(runErr))
		return outcome, runErr
	case runErr != nil && IsPermanent(runErr):
		status, label = domain.RunStatusAborted, "aborted"
		outcome = Outcome{Success: false, Reason: runErr.Error()}
	case runErr != nil:
		status, label = domain.RunStatusFailed, "error"
		outcome = Outcome{Success: false, Reason: runErr.Error()}
	case !outcome.Success:
		status, label = domain.RunStatusFailed, "failed"
	}

	// finish on a detached context so a late cancel cannot strand the header
	if err := e.runs.Finish(context.WithoutCancel(ctx), run.ID, status, outcome.Reason); err != nil {
		logger.Error("finish run failed", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("finish run %s: %w", run.ID, err)
		}
	}
	if e.metrics != nil {
		e.metrics.RecordWorkflowRun(wf.Name(), label)
	}

	if runErr != nil {
		logger.Warn("run ended with error", zap.String("status", string(status)), zap.Error(runErr))
	} else {
		logger.Info("run finished", zap.Bool("success", outcome.Success), zap.String("reason", outcome.Reason))
	}
	return outcome, runErr
}
