package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/notify"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/triage"
)

// RunLog persists runs and their step results.
type RunLog interface {
	triage.RunStore
	triage.StepLog
	StaleRunLister
}

// UserStore is the account lookup both workflows need.
type UserStore interface {
	triage.UserDirectory
	triage.UserFinder
}

// PipelineDeps are the collaborators a Pipeline is assembled from. Notifier
// carries assignment notices and WelcomeNotifier carries signup mail.
type PipelineDeps struct {
	Queue           events.Queue
	Runs            RunLog
	Tickets         triage.TicketStore
	History         triage.HistoryRecorder
	Users           UserStore
	Classifier      triage.Classifier
	Notifier        notify.Notifier
	WelcomeNotifier notify.Notifier
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// Pipeline is the runner and resume sweeper with both workflows registered.
type Pipeline struct {
	Runner   *Runner
	Sweeper  *Sweeper
	schedule string
	logger   *zap.Logger
}

// NewPipeline wires the ticket triage and signup workflows onto deps.Queue.
func NewPipeline(cfg *config.Config, deps PipelineDeps) (*Pipeline, error) {
	if deps.Queue == nil || deps.Runs == nil || deps.Tickets == nil || deps.Users == nil || deps.Classifier == nil ||
		deps.Notifier == nil || deps.WelcomeNotifier == nil {
		return nil, errors.New("pipeline: missing dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := triage.RetryPolicy{
		Retries:     cfg.Workflow.StepRetries,
		BaseBackoff: cfg.Workflow.BaseBackoff(),
		MaxBackoff:  cfg.Workflow.MaxBackoff(),
	}
	steps := triage.NewStepRunner(deps.Runs, policy, deps.Metrics, logger)
	transitions := triage.NewTransitions(deps.Tickets, deps.History, logger)
	ticketWorkflow := triage.NewTicketWorkflow(steps, deps.Tickets, transitions, deps.Classifier,
		triage.NewSelector(deps.Users), deps.Notifier, logger)
	signupWorkflow := triage.NewSignupWorkflow(steps, deps.Users, deps.WelcomeNotifier, logger)

	engine := triage.NewEngine(deps.Runs, deps.Metrics, logger)
	runner := NewRunner(deps.Queue, engine, cfg.Worker.Concurrency, logger)
	runner.Register(events.NameTicketCreated, ticketWorkflow)
	runner.Register(events.NameUserSignup, signupWorkflow)

	return &Pipeline{
		Runner:   runner,
		Sweeper:  NewSweeper(deps.Runs, deps.Queue, cfg.Worker.ResumeStaleAfter(), logger),
		schedule: cfg.Worker.ResumeSchedule,
		logger:   logger,
	}, nil
}

// Run schedules the sweeper and consumes events until ctx is cancelled.
// An empty schedule disables resuming.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.schedule != "" {
		if err := p.Sweeper.Start(ctx, p.schedule); err != nil {
			return err
		}
	} else {
		p.logger.Warn("resume sweeper disabled")
	}
	err := p.Runner.Start(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, events.ErrQueueClosed) {
		return nil
	}
	return err
}
