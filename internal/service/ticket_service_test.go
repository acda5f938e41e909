package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

var (
	plainUser = &domain.User{ID: "u-1", Role: domain.RoleUser}
	moderator = &domain.User{ID: "m-1", Role: domain.RoleModerator}
)

func TestCreateTicketPublishesEvent(t *testing.T) {
	repo := &fakeTicketRepo{createFn: func(_ context.Context, ticket *domain.Ticket) error {
		ticket.ID = "t-1"
		return nil
	}}
	pub := &capturePublisher{}
	svc := NewTicketService(repo, &fakeHistoryRepo{}, pub, nil)

	ticket, err := svc.CreateTicket(context.Background(), plainUser, TicketCreateInput{Title: " Printer ", Description: "on fire"})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if ticket.Status != domain.TicketStatusCreated || ticket.CreatedBy != "u-1" || ticket.Title != "Printer" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if len(pub.events) != 1 || pub.events[0].Name != events.NameTicketCreated {
		t.Fatalf("unexpected events %+v", pub.events)
	}
	var payload events.TicketCreated
	if err := pub.events[0].Decode(&payload); err != nil || payload.TicketID != "t-1" {
		t.Fatalf("payload = %+v, %v", payload, err)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	svc := NewTicketService(&fakeTicketRepo{}, &fakeHistoryRepo{}, &capturePublisher{}, nil)
	for _, in := range []TicketCreateInput{
		{Title: "", Description: "d"},
		{Title: "t", Description: "  "},
	} {
		if _, err := svc.CreateTicket(context.Background(), plainUser, in); statusOf(t, err) != http.StatusBadRequest {
			t.Fatalf("CreateTicket(%+v) expected 400, got %v", in, err)
		}
	}
}

func TestCreateTicketStillReturnsWhenPublishFails(t *testing.T) {
	repo := &fakeTicketRepo{createFn: func(_ context.Context, ticket *domain.Ticket) error {
		ticket.ID = "t-1"
		return nil
	}}
	svc := NewTicketService(repo, &fakeHistoryRepo{}, &capturePublisher{err: errors.New("down")}, nil)
	if _, err := svc.CreateTicket(context.Background(), plainUser, TicketCreateInput{Title: "t", Description: "d"}); err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
}

func TestListTicketsScopesPlainUsers(t *testing.T) {
	var filters []repository.TicketFilter
	repo := &fakeTicketRepo{listFn: func(_ context.Context, f repository.TicketFilter) ([]domain.Ticket, error) {
		filters = append(filters, f)
		return nil, nil
	}}
	svc := NewTicketService(repo, &fakeHistoryRepo{}, &capturePublisher{}, nil)

	tickets, err := svc.ListTickets(context.Background(), plainUser, TicketListOptions{})
	if err != nil || tickets == nil {
		t.Fatalf("ListTickets() = %v, %v", tickets, err)
	}
	if _, err := svc.ListTickets(context.Background(), moderator, TicketListOptions{}); err != nil {
		t.Fatalf("ListTickets() error = %v", err)
	}

	if filters[0].CreatedBy == nil || *filters[0].CreatedBy != "u-1" {
		t.Fatalf("plain user filter = %+v", filters[0])
	}
	if filters[1].CreatedBy != nil {
		t.Fatalf("moderator should see all, filter = %+v", filters[1])
	}
}

func TestGetTicketVisibility(t *testing.T) {
	repo := &fakeTicketRepo{getByIDFn: func(_ context.Context, id string) (*domain.Ticket, error) {
		if id == "missing" {
			return nil, pgx.ErrNoRows
		}
		return &domain.Ticket{ID: id, CreatedBy: "someone-else"}, nil
	}}
	svc := NewTicketService(repo, &fakeHistoryRepo{}, &capturePublisher{}, nil)

	if _, err := svc.GetTicket(context.Background(), plainUser, "t-1"); statusOf(t, err) != http.StatusNotFound {
		t.Fatalf("foreign ticket should read as 404, got %v", err)
	}
	if ticket, err := svc.GetTicket(context.Background(), moderator, "t-1"); err != nil || ticket.ID != "t-1" {
		t.Fatalf("moderator GetTicket() = %+v, %v", ticket, err)
	}
	if _, err := svc.GetTicket(context.Background(), moderator, "missing"); statusOf(t, err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestTicketHistoryChecksVisibility(t *testing.T) {
	repo := &fakeTicketRepo{getByIDFn: func(_ context.Context, id string) (*domain.Ticket, error) {
		return &domain.Ticket{ID: id, CreatedBy: "u-1"}, nil
	}}
	history := &fakeHistoryRepo{listFn: func(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
		return []domain.TicketHistory{{TicketID: ticketID, ChangeType: domain.ChangeTypeStatus}}, nil
	}}
	svc := NewTicketService(repo, history, &capturePublisher{}, nil)

	entries, err := svc.TicketHistory(context.Background(), plainUser, "t-1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("TicketHistory() = %v, %v", entries, err)
	}
	stranger := &domain.User{ID: "u-2", Role: domain.RoleUser}
	if _, err := svc.TicketHistory(context.Background(), stranger, "t-1"); statusOf(t, err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
