package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// TicketHistoryRepository is the append-only audit trail of ticket changes.
type TicketHistoryRepository interface {
	Append(ctx context.Context, entry *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

// Append stores entry; entries without an actor are attributed to the system.
func (r *ticketHistoryRepository) Append(ctx context.Context, entry *domain.TicketHistory) error {
	if entry.ChangedByType == "" {
		entry.ChangedByType = domain.ActorTypeSystem
	}
	return r.pool.QueryRow(ctx, `
        INSERT INTO ticket_history (ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`,
		entry.TicketID, entry.ChangedByType, entry.ChangedByID, entry.ChangeType, entry.OldValue, entry.NewValue,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListByTicket returns the trail oldest first.
func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.TicketHistory{}
	for rows.Next() {
		var e domain.TicketHistory
		if err := rows.Scan(&e.ID, &e.TicketID, &e.ChangedByType, &e.ChangedByID,
			&e.ChangeType, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
