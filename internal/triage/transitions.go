package triage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

// TicketStore is the ticket persistence the workflow needs. Writes are
// conditional on the current status being one of expected.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	TransitionStatus(ctx context.Context, id string, expected []domain.TicketStatus, to domain.TicketStatus) (bool, error)
	CompleteTriage(ctx context.Context, id string, expected []domain.TicketStatus, update repository.TriageUpdate) (bool, error)
}

// HistoryRecorder appends audit entries.
type HistoryRecorder interface {
	Append(ctx context.Context, entry *domain.TicketHistory) error
}

// Transitions applies the triage state machine to stored tickets. Each method
// is safe to repeat: a ticket already past the source state is left alone.
type Transitions struct {
	tickets TicketStore
	history HistoryRecorder
	logger  *zap.Logger
}

// NewTransitions builds the state machine writer. history may be nil.
func NewTransitions(tickets TicketStore, history HistoryRecorder, logger *zap.Logger) *Transitions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transitions{tickets: tickets, history: history, logger: logger}
}

// MarkTodo moves CREATED to TODO.
func (t *Transitions) MarkTodo(ctx context.Context, ticketID string) (bool, error) {
	return t.move(ctx, ticketID, domain.TicketStatusCreated, domain.TicketStatusTodo)
}

// MarkNeedsReview moves TODO to NEEDS_MANUAL_REVIEW. Priority, skills and
// assignee are untouched.
func (t *Transitions) MarkNeedsReview(ctx context.Context, ticketID string) (bool, error) {
	return t.move(ctx, ticketID, domain.TicketStatusTodo, domain.TicketStatusNeedsManualReview)
}

func (t *Transitions) move(ctx context.Context, ticketID string, from, to domain.TicketStatus) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	changed, err := t.tickets.TransitionStatus(ctx, ticketID, []domain.TicketStatus{from}, to)
	if err != nil {
		return false, err
	}
	if changed {
		t.record(ctx, ticketID, domain.ChangeTypeStatus,
			map[string]any{"status": from},
			map[string]any{"status": to})
	}
	return changed, nil
}

// CompleteTriage writes the classifier's judgment, the assignee and
// IN_PROGRESS in one update. Re-applying it to an IN_PROGRESS ticket
// overwrites the same fields.
func (t *Transitions) CompleteTriage(ctx context.Context, ticketID string, result domain.TriageResult, assigneeID *string) (bool, error) {
	priority := domain.NormalizeTriagePriority(result.Priority)
	update := repository.TriageUpdate{
		Priority:      priority,
		RelatedSkills: result.RelatedSkills,
		HelpfulNotes:  result.HelpfulNotes,
		AssignedTo:    assigneeID,
	}
	changed, err := t.tickets.CompleteTriage(ctx, ticketID,
		[]domain.TicketStatus{domain.TicketStatusTodo, domain.TicketStatusInProgress}, update)
	if err != nil {
		return false, err
	}
	if changed {
		newValue := map[string]any{
			"status":        domain.TicketStatusInProgress,
			"priority":      priority,
			"relatedSkills": result.RelatedSkills,
		}
		if assigneeID != nil {
			newValue["assignedTo"] = *assigneeID
		}
		t.record(ctx, ticketID, domain.ChangeTypeTriage, nil, newValue)
	}
	return changed, nil
}

// record is best effort; the status write has already committed.
func (t *Transitions) record(ctx context.Context, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if t.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.ActorTypeSystem,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	if err := t.history.Append(ctx, entry); err != nil {
		t.logger.Warn("ticket history append failed",
			zap.String("ticket_id", ticketID),
			zap.String("change", string(change)),
			zap.Error(err),
		)
	}
}
