package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StepLog stores the JSON result of every completed step of a run.
type StepLog interface {
	LoadStep(ctx context.Context, runID, step string) (json.RawMessage, bool, error)
	SaveStep(ctx context.Context, runID, step string, result json.RawMessage) error
}

// StepRecorder counts step attempts.
type StepRecorder interface {
	RecordStepAttempt(step, result string)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryPolicy bounds how often a failing step is re-run.
type RetryPolicy struct {
	Retries     int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy retries twice starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 2, BaseBackoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second}
}

// Backoff returns the delay before retry number attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// StepRunner executes named steps at most once per run, replaying logged
// results when a run is resumed.
type StepRunner struct {
	log     StepLog
	policy  RetryPolicy
	metrics StepRecorder
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewStepRunner builds a runner. metrics may be nil.
func NewStepRunner(log StepLog, policy RetryPolicy, metrics StepRecorder, logger *zap.Logger) *StepRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	return &StepRunner{log: log, policy: policy, metrics: metrics, logger: logger, sleep: sleepContext}
}

// Do runs fn as step of runID and decodes its result into out (which may be
// nil). If the step already completed, fn is skipped and the logged result is
// decoded instead.
func (r *StepRunner) Do(ctx context.Context, runID, step string, out any, fn func(ctx context.Context) (any, error)) error {
	raw, found, err := r.log.LoadStep(ctx, runID, step)
	if err != nil {
		return fmt.Errorf("load step %s: %w", step, err)
	}
	if found {
		r.record(step, "replayed")
		return decodeStep(step, raw, out)
	}

	var lastErr error
	for attempt := 0; attempt <= r.policy.Retries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.policy.Backoff(attempt-1)); err != nil {
				return err
			}
		}

		value, err := fn(ctx)
		if err == nil {
			raw, err := json.Marshal(value)
			if err != nil {
				return Permanent(fmt.Errorf("encode step %s: %w", step, err))
			}
			if err := r.log.SaveStep(ctx, runID, step, raw); err != nil {
				return fmt.Errorf("save step %s: %w", step, err)
			}
			r.record(step, "ok")
			return decodeStep(step, raw, out)
		}

		lastErr = err
		if IsPermanent(err) {
			r.record(step, "permanent")
			r.logger.Warn("step failed permanently",
				zap.String("run_id", runID),
				zap.String("step", step),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			return fmt.Errorf("step %s: %w", step, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.record(step, "error")
		r.logger.Warn("step attempt failed",
			zap.String("run_id", runID),
			zap.String("step", step),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.policy.Retries+1),
			zap.Error(err),
		)
	}
	return fmt.Errorf("step %s failed after %d attempts: %w", step, r.policy.Retries+1, lastErr)
}

func (r *StepRunner) record(step, result string) {
	if r.metrics != nil {
		r.metrics.RecordStepAttempt(step, result)
	}
}

func decodeStep(step string, raw json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return Permanent(fmt.Errorf("decode step %s: %w", step, err))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
