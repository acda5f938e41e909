package service

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

var errNotStubbed = errors.New("not stubbed")

type fakeUserRepo struct {
	createFn     func(ctx context.Context, user *domain.User) error
	updateFn     func(ctx context.Context, email string, role domain.Role, skills []string) error
	getByIDFn    func(ctx context.Context, id string) (*domain.User, error)
	getByEmailFn func(ctx context.Context, email string) (*domain.User, error)
	listFn       func(ctx context.Context) ([]domain.User, error)
}

func (f *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	if f.createFn == nil {
		return errNotStubbed
	}
	return f.createFn(ctx, user)
}

func (f *fakeUserRepo) UpdateRoleAndSkills(ctx context.Context, email string, role domain.Role, skills []string) error {
	if f.updateFn == nil {
		return errNotStubbed
	}
	return f.updateFn(ctx, email, role, skills)
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if f.getByIDFn == nil {
		return nil, errNotStubbed
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if f.getByEmailFn == nil {
		return nil, errNotStubbed
	}
	return f.getByEmailFn(ctx, email)
}

func (f *fakeUserRepo) List(ctx context.Context) ([]domain.User, error) {
	if f.listFn == nil {
		return nil, errNotStubbed
	}
	return f.listFn(ctx)
}

func (f *fakeUserRepo) ListByRole(context.Context, domain.Role) ([]domain.User, error) {
	return nil, errNotStubbed
}

type fakeTicketRepo struct {
	createFn  func(ctx context.Context, ticket *domain.Ticket) error
	getByIDFn func(ctx context.Context, id string) (*domain.Ticket, error)
	listFn    func(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error)
}

func (f *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	return f.createFn(ctx, ticket)
}

func (f *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeTicketRepo) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return f.listFn(ctx, filter)
}

func (f *fakeTicketRepo) TransitionStatus(context.Context, string, []domain.TicketStatus, domain.TicketStatus) (bool, error) {
	return false, errNotStubbed
}

func (f *fakeTicketRepo) CompleteTriage(context.Context, string, []domain.TicketStatus, repository.TriageUpdate) (bool, error) {
	return false, errNotStubbed
}

type capturePublisher struct {
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type fakeHistoryRepo struct {
	listFn func(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

func (f *fakeHistoryRepo) Append(context.Context, *domain.TicketHistory) error { return nil }

func (f *fakeHistoryRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, ticketID)
}
