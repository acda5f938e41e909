package triage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/notify"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

const (
	StepFetchUser        = "fetch-user"
	StepSendWelcomeEmail = "send-welcome-email"
)

// UserFinder looks users up by email.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SignupWorkflow welcomes a new user.
type SignupWorkflow struct {
	steps    *StepRunner
	users    UserFinder
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewSignupWorkflow wires the signup workflow.
func NewSignupWorkflow(steps *StepRunner, users UserFinder, notifier notify.Notifier, logger *zap.Logger) *SignupWorkflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignupWorkflow{steps: steps, users: users, notifier: notifier, logger: logger}
}

func (w *SignupWorkflow) Name() string { return "user-signup" }

// Run executes the signup steps for a user/signup event. A failed welcome
// mail does not fail the run.
func (w *SignupWorkflow) Run(ctx context.Context, runID string, event events.Event) (Outcome, error) {
	var payload events.UserSignup
	if err := event.Decode(&payload); err != nil {
		return Outcome{}, Permanent(err)
	}

	var email string
	if err := w.steps.Do(ctx, runID, StepFetchUser, &email, func(ctx context.Context) (any, error) {
		user, err := w.users.GetByEmail(ctx, payload.Email)
		if apperrors.IsNoRows(err) {
			return nil, Permanent(fmt.Errorf("%w: %s", ErrUserNotFound, payload.Email))
		}
		if err != nil {
			return nil, err
		}
		return user.Email, nil
	}); err != nil {
		return Outcome{}, err
	}

	if err := deliver(ctx, w.steps, runID, StepSendWelcomeEmail, w.notifier, notify.WelcomeMessage(email)); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		w.logger.Warn("welcome email failed",
			zap.String("run_id", runID),
			zap.String("email", email),
			zap.Error(err),
		)
	}
	return Outcome{Success: true}, nil
}
