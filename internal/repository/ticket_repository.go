package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy *string
	Statuses  []domain.TicketStatus
	Limit     int
	Offset    int
}

// TriageUpdate carries the fields written when triage completes.
type TriageUpdate struct {
	Priority      domain.TicketPriority
	RelatedSkills []string
	HelpfulNotes  string
	AssignedTo    *string
}

// TicketRepository encapsulates ticket persistence.
//
// Status writes are conditional on the current status. They report whether a row
// was changed; false with a nil error means the ticket exists but was not in one
// of the expected states.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	TransitionStatus(ctx context.Context, id string, expected []domain.TicketStatus, to domain.TicketStatus) (bool, error)
	CompleteTriage(ctx context.Context, id string, expected []domain.TicketStatus, update TriageUpdate) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketSelect = `
        SELECT t.id, t.title, t.description, t.status, t.priority, t.related_skills, t.helpful_notes,
               t.assigned_to, u.email, t.created_by, t.created_at, t.updated_at
        FROM tickets t
        LEFT JOIN users u ON u.id = t.assigned_to`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, created_by)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusCreated
	}
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.CreatedBy,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, pgx.ErrNoRows
	}
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, ticketSelect+` WHERE t.id=$1`, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("t.created_by=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("t.status = ANY($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at DESC LIMIT %d OFFSET %d`,
		ticketSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) TransitionStatus(ctx context.Context, id string, expected []domain.TicketStatus, to domain.TicketStatus) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status = ANY($3)`
	cmd, err := r.pool.Exec(ctx, query, to, id, statusStrings(expected))
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() > 0 {
		return true, nil
	}
	return false, r.ensureExists(ctx, id)
}

func (r *ticketRepository) CompleteTriage(ctx context.Context, id string, expected []domain.TicketStatus, update TriageUpdate) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, related_skills=$3, helpful_notes=$4, assigned_to=$5, updated_at=NOW()
        WHERE id=$6 AND status = ANY($7)`
	skills := update.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	cmd, err := r.pool.Exec(ctx, query,
		domain.TicketStatusInProgress,
		update.Priority,
		skills,
		update.HelpfulNotes,
		update.AssignedTo,
		id,
		statusStrings(expected),
	)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() > 0 {
		return true, nil
	}
	return false, r.ensureExists(ctx, id)
}

func (r *ticketRepository) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.RelatedSkills,
		&ticket.HelpfulNotes,
		&ticket.AssignedTo,
		&ticket.AssigneeEmail,
		&ticket.CreatedBy,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
