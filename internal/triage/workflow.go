// Package triage runs the workflows triggered by ticket and signup events.
package triage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/notify"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// ReasonAnalysisFailed is reported when a ticket is sent to manual review.
const ReasonAnalysisFailed = "AI analysis failed."

const (
	StepFetchTicket       = "fetch-ticket"
	StepMarkTodo          = "mark-todo"
	StepClassify          = "classify"
	StepMarkNeedsReview   = "mark-needs-review"
	StepFindModerator     = "find-moderator"
	StepAssignAndFinalize = "assign-and-finalize"
	StepNotifyAssignee    = "notify-assignee"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrUserNotFound   = errors.New("user not found")
	errRunNotFound    = errors.New("workflow run not found")
)

// Classifier judges a ticket.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (*domain.TriageResult, error)
}

// AssigneeSelector picks who handles a ticket.
type AssigneeSelector interface {
	Select(ctx context.Context, requiredSkills []string) (*domain.User, error)
}

type ticketSnapshot struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type classification struct {
	Result *domain.TriageResult `json:"result"`
}

// settled is the ticket status after a conditional write. Applied is false
// when another run had already moved the ticket elsewhere.
type settled struct {
	Applied bool                `json:"applied"`
	Status  domain.TicketStatus `json:"status"`
}

type assigneeRef struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
}

// TicketWorkflow triages a newly created ticket.
type TicketWorkflow struct {
	steps       *StepRunner
	tickets     TicketStore
	transitions *Transitions
	classifier  Classifier
	selector    AssigneeSelector
	notifier    notify.Notifier
	logger      *zap.Logger
}

// NewTicketWorkflow wires the triage workflow.
func NewTicketWorkflow(steps *StepRunner, tickets TicketStore, transitions *Transitions, classifier Classifier, selector AssigneeSelector, notifier notify.Notifier, logger *zap.Logger) *TicketWorkflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketWorkflow{
		steps:       steps,
		tickets:     tickets,
		transitions: transitions,
		classifier:  classifier,
		selector:    selector,
		notifier:    notifier,
		logger:      logger,
	}
}

func (w *TicketWorkflow) Name() string { return "ticket-triage" }

// Run executes the triage steps for a ticket/created event.
func (w *TicketWorkflow) Run(ctx context.Context, runID string, event events.Event) (Outcome, error) {
	var payload events.TicketCreated
	if err := event.Decode(&payload); err != nil {
		return Outcome{}, Permanent(err)
	}
	if payload.TicketID == "" {
		return Outcome{}, Permanent(fmt.Errorf("%w: empty ticket id", ErrTicketNotFound))
	}
	logger := w.logger.With(zap.String("run_id", runID), zap.String("ticket_id", payload.TicketID))

	var ticket ticketSnapshot
	if err := w.steps.Do(ctx, runID, StepFetchTicket, &ticket, func(ctx context.Context) (any, error) {
		t, err := w.tickets.GetByID(ctx, payload.TicketID)
		if err != nil {
			return nil, ticketError(err)
		}
		return ticketSnapshot{ID: t.ID, Title: t.Title, Description: t.Description}, nil
	}); err != nil {
		return Outcome{}, err
	}

	if err := w.steps.Do(ctx, runID, StepMarkTodo, nil, func(ctx context.Context) (any, error) {
		changed, err := w.transitions.MarkTodo(ctx, ticket.ID)
		return changed, ticketError(err)
	}); err != nil {
		return Outcome{}, err
	}

	var classified classification
	err := w.steps.Do(ctx, runID, StepClassify, &classified, func(ctx context.Context) (any, error) {
		result, err := w.classifier.Classify(ctx, ticket.Title, ticket.Description)
		if errors.Is(err, classifier.ErrMalformed) {
			return nil, Permanent(err)
		}
		if err != nil {
			return nil, err
		}
		return classification{Result: result}, nil
	})
	if err != nil && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	if err != nil || !classified.Result.Usable() {
		if err != nil {
			logger.Warn("classification failed", zap.Error(err))
		} else {
			logger.Info("classification returned no skills")
		}
		var review settled
		if err := w.steps.Do(ctx, runID, StepMarkNeedsReview, &review, func(ctx context.Context) (any, error) {
			changed, err := w.transitions.MarkNeedsReview(ctx, ticket.ID)
			if err != nil {
				return nil, ticketError(err)
			}
			return w.settle(ctx, ticket.ID, changed, domain.TicketStatusNeedsManualReview)
		}); err != nil {
			return Outcome{}, err
		}
		if !review.Applied {
			logger.Info("ticket already settled", zap.String("status", string(review.Status)))
			return storedOutcome(review.Status), nil
		}
		return Outcome{Success: false, Reason: ReasonAnalysisFailed}, nil
	}
	result := *classified.Result

	var assignee assigneeRef
	if err := w.steps.Do(ctx, runID, StepFindModerator, &assignee, func(ctx context.Context) (any, error) {
		user, err := w.selector.Select(ctx, result.RelatedSkills)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return assigneeRef{}, nil
		}
		return assigneeRef{ID: user.ID, Email: user.Email}, nil
	}); err != nil {
		return Outcome{}, err
	}

	var final settled
	if err := w.steps.Do(ctx, runID, StepAssignAndFinalize, &final, func(ctx context.Context) (any, error) {
		var assignedTo *string
		if assignee.ID != "" {
			id := assignee.ID
			assignedTo = &id
		}
		changed, err := w.transitions.CompleteTriage(ctx, ticket.ID, result, assignedTo)
		if err != nil {
			return nil, ticketError(err)
		}
		return w.settle(ctx, ticket.ID, changed, domain.TicketStatusInProgress)
	}); err != nil {
		return Outcome{}, err
	}
	if !final.Applied {
		// the assignment never landed, so nobody is told about it
		logger.Info("ticket already settled", zap.String("status", string(final.Status)))
		return storedOutcome(final.Status), nil
	}

	if assignee.ID == "" {
		logger.Info("ticket triaged without assignee")
		return Outcome{Success: true}, nil
	}

	if err := deliver(ctx, w.steps, runID, StepNotifyAssignee, w.notifier, notify.AssignmentMessage(assignee.Email, ticket.Title)); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		logger.Warn("assignee notification failed", zap.String("assignee", assignee.Email), zap.Error(err))
	}

	logger.Info("ticket triaged", zap.String("assignee_id", assignee.ID))
	return Outcome{Success: true}, nil
}

// settle reports where the ticket ended up after a conditional write.
func (w *TicketWorkflow) settle(ctx context.Context, ticketID string, changed bool, target domain.TicketStatus) (settled, error) {
	if changed {
		return settled{Applied: true, Status: target}, nil
	}
	t, err := w.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return settled{}, ticketError(err)
	}
	return settled{Applied: false, Status: t.Status}, nil
}

// storedOutcome reports a ticket whose triage was decided by an earlier run.
func storedOutcome(status domain.TicketStatus) Outcome {
	switch status {
	case domain.TicketStatusInProgress:
		return Outcome{Success: true}
	case domain.TicketStatusNeedsManualReview:
		return Outcome{Success: false, Reason: ReasonAnalysisFailed}
	default:
		return Outcome{Success: false, Reason: fmt.Sprintf("ticket is %s", status)}
	}
}

// ticketError turns a missing ticket into a permanent failure.
func ticketError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsNoRows(err) {
		return Permanent(fmt.Errorf("%w: %v", ErrTicketNotFound, err))
	}
	return err
}
