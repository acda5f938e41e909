package triage

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/notify"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

// memTickets mimics the conditional updates of the Postgres store.
type memTickets struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	writes  int
}

func newMemTickets(tickets ...domain.Ticket) *memTickets {
	m := &memTickets{tickets: map[string]*domain.Ticket{}}
	for i := range tickets {
		t := tickets[i]
		m.tickets[t.ID] = &t
	}
	return m
}

func (m *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memTickets) TransitionStatus(_ context.Context, id string, expected []domain.TicketStatus, to domain.TicketStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if !statusIn(t.Status, expected) {
		return false, nil
	}
	t.Status = to
	m.writes++
	return true, nil
}

func (m *memTickets) CompleteTriage(_ context.Context, id string, expected []domain.TicketStatus, update repository.TriageUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if !statusIn(t.Status, expected) {
		return false, nil
	}
	p := update.Priority
	notes := update.HelpfulNotes
	t.Status = domain.TicketStatusInProgress
	t.Priority = &p
	t.RelatedSkills = update.RelatedSkills
	t.HelpfulNotes = &notes
	t.AssignedTo = update.AssignedTo
	m.writes++
	return true, nil
}

func (m *memTickets) get(id string) domain.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tickets[id]
}

func statusIn(s domain.TicketStatus, set []domain.TicketStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

type fakeHistory struct {
	entries []domain.TicketHistory
}

func (f *fakeHistory) Append(_ context.Context, entry *domain.TicketHistory) error {
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeClassifier struct {
	classifyFn func(ctx context.Context, title, description string) (*domain.TriageResult, error)
	calls      int
}

func (f *fakeClassifier) Classify(ctx context.Context, title, description string) (*domain.TriageResult, error) {
	f.calls++
	return f.classifyFn(ctx, title, description)
}

type fakeDirectory struct {
	users []domain.User
	err   error
}

func (f *fakeDirectory) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	notifyFn func(ctx context.Context, msg notify.Message) error
	sent     []notify.Message
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	if f.notifyFn != nil {
		return f.notifyFn(ctx, msg)
	}
	return nil
}

type channelNotifier struct {
	fakeNotifier
	channel string
}

func (c *channelNotifier) Channel() string { return c.channel }

func noSleep(context.Context, time.Duration) error { return nil }

func testRunner(log StepLog) *StepRunner {
	r := NewStepRunner(log, DefaultRetryPolicy(), nil, nil)
	r.sleep = noSleep
	return r
}
