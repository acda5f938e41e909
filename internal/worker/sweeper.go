package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
)

const sweepBatch = 100

// StaleRunLister finds runs that stopped making progress.
type StaleRunLister interface {
	ListStale(ctx context.Context, idleSince time.Time, limit int) ([]domain.WorkflowRun, error)
}

// Sweeper re-publishes the events of stalled runs so they resume from their
// last logged step.
type Sweeper struct {
	runs       StaleRunLister
	publisher  events.Publisher
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSweeper builds a sweeper.
func NewSweeper(runs StaleRunLister, publisher events.Publisher, staleAfter time.Duration, logger *zap.Logger) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{runs: runs, publisher: publisher, staleAfter: staleAfter, logger: logger, now: time.Now}
}

// SweepOnce re-publishes every stale run and returns how many were queued.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.runs.ListStale(ctx, s.now().Add(-s.staleAfter), sweepBatch)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, run := range stale {
		event := events.Event{
			ID:        run.ID,
			Name:      events.Name(run.EventName),
			Data:      run.Payload,
			Timestamp: s.now().UTC(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("resume publish failed", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		queued++
	}
	if queued > 0 {
		s.logger.Info("resumed stale runs", zap.Int("count", queued))
	}
	return queued, nil
}

// Start schedules SweepOnce on a cron spec such as "@every 1m" and stops the
// schedule when ctx is done.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger.Sugar()})))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("resume sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.logger.Info("resume sweeper scheduled", zap.String("schedule", spec), zap.Duration("stale_after", s.staleAfter))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
