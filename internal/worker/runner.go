// Package worker consumes queued events and drives workflow runs.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/triage"
)

// Executor runs one workflow for one event in two phases: Begin persists the
// run header, Resume drives it to completion.
type Executor interface {
	Begin(ctx context.Context, wf triage.Workflow, event events.Event) (*domain.WorkflowRun, error)
	Resume(ctx context.Context, wf triage.Workflow, run *domain.WorkflowRun, event events.Event) (triage.Outcome, error)
}

// Runner dispatches consumed events to workflows with bounded concurrency.
type Runner struct {
	queue     events.Queue
	engine    Executor
	workflows map[events.Name]triage.Workflow
	sem       chan struct{}
	logger    *zap.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewRunner builds a runner. concurrency <= 0 defaults to 4.
func NewRunner(queue events.Queue, engine Executor, concurrency int, logger *zap.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		queue:     queue,
		engine:    engine,
		workflows: make(map[events.Name]triage.Workflow),
		sem:       make(chan struct{}, concurrency),
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}
}

// Register routes events named name to wf. Call before Start.
func (r *Runner) Register(name events.Name, wf triage.Workflow) {
	r.workflows[name] = wf
}

// Start consumes until ctx is cancelled, then waits for running workflows.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("workflow runner started", zap.Int("concurrency", cap(r.sem)))
	err := r.queue.Consume(ctx, r.Dispatch)
	r.wg.Wait()
	r.logger.Info("workflow runner stopped")
	return err
}

// Dispatch starts the workflow for event once a slot is free. It blocks while
// all slots are busy. An event whose run is already executing here is dropped.
// The run header is written before Dispatch returns; if that fails the error
// is returned so the queue keeps the event.
func (r *Runner) Dispatch(ctx context.Context, event events.Event) error {
	wf, ok := r.workflows[event.Name]
	if !ok {
		r.logger.Warn("no workflow for event", zap.String("event", string(event.Name)), zap.String("event_id", event.ID))
		return nil
	}
	if !r.claim(event.ID) {
		r.logger.Info("run already in flight", zap.String("run_id", event.ID))
		return nil
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		r.release(event.ID)
		return ctx.Err()
	}

	run, err := r.engine.Begin(ctx, wf, event)
	if err != nil {
		<-r.sem
		r.release(event.ID)
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()
		defer r.release(event.ID)

		if _, err := r.engine.Resume(ctx, wf, run, event); err != nil {
			r.logger.Warn("workflow run failed",
				zap.String("run_id", event.ID),
				zap.String("workflow", wf.Name()),
				zap.Error(err),
			)
		}
	}()
	return nil
}

func (r *Runner) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

// Wait blocks until every dispatched workflow has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
