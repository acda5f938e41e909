package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

const maxTitleLength = 200

// TicketService creates tickets and enforces who may read them.
type TicketService struct {
	tickets   repository.TicketRepository
	history   repository.TicketHistoryRepository
	publisher events.Publisher
	logger    *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
}

// TicketListOptions pages through visible tickets.
type TicketListOptions struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, history repository.TicketHistoryRepository, publisher events.Publisher, logger *zap.Logger) *TicketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{tickets: tickets, history: history, publisher: publisher, logger: logger}
}

// CreateTicket stores a CREATED ticket for creator and queues it for triage.
func (s *TicketService) CreateTicket(ctx context.Context, creator *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	} else if len(title) > maxTitleLength {
		details["title"] = "too long"
	}
	if description == "" {
		details["description"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusCreated,
		CreatedBy:   creator.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	event, err := events.NewEvent(events.NameTicketCreated, events.TicketCreated{TicketID: ticket.ID})
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		// the ticket stays CREATED until it is re-queued
		s.logger.Error("ticket event publish failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else {
		s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("event_id", event.ID))
	}
	return ticket, nil
}

// ListTickets returns the caller's own tickets, or every ticket for
// moderators and admins, newest first.
func (s *TicketService) ListTickets(ctx context.Context, viewer *domain.User, opts TicketListOptions) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{Statuses: opts.Statuses, Limit: opts.Limit, Offset: opts.Offset}
	if !viewer.Role.CanViewAllTickets() {
		id := viewer.ID
		filter.CreatedBy = &id
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// GetTicket returns one ticket. Plain users only see their own; anything else
// reads as not found.
func (s *TicketService) GetTicket(ctx context.Context, viewer *domain.User, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, err
	}
	if !viewer.Role.CanViewAllTickets() && ticket.CreatedBy != viewer.ID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return ticket, nil
}

// TicketHistory returns the audit trail of a ticket the viewer can see.
func (s *TicketService) TicketHistory(ctx context.Context, viewer *domain.User, id string) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, viewer, id); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.TicketHistory{}
	}
	return entries, nil
}
