package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// WorkflowRunRepository persists workflow run headers and their completed steps.
type WorkflowRunRepository interface {
	// Begin records run if it is new and returns the stored row either way.
	Begin(ctx context.Context, run domain.WorkflowRun) (*domain.WorkflowRun, error)
	Finish(ctx context.Context, id string, status domain.RunStatus, reason string) error
	ListStale(ctx context.Context, idleSince time.Time, limit int) ([]domain.WorkflowRun, error)
	LoadStep(ctx context.Context, runID, step string) (json.RawMessage, bool, error)
	SaveStep(ctx context.Context, runID, step string, result json.RawMessage) error
}

type workflowRunRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRunRepository builds the Postgres step log.
func NewWorkflowRunRepository(pool *pgxpool.Pool) WorkflowRunRepository {
	return &workflowRunRepository{pool: pool}
}

const runColumns = `id, workflow, event_name, payload, status, reason, started_at, updated_at`

func (r *workflowRunRepository) Begin(ctx context.Context, run domain.WorkflowRun) (*domain.WorkflowRun, error) {
	const insert = `
        INSERT INTO workflow_runs (id, workflow, event_name, payload, status)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, run.ID, run.Workflow, run.EventName, run.Payload, domain.RunStatusRunning); err != nil {
		return nil, err
	}

	var stored domain.WorkflowRun
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id=$1`, run.ID)
	if err := scanRun(row, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *workflowRunRepository) Finish(ctx context.Context, id string, status domain.RunStatus, reason string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE workflow_runs SET status=$1, reason=$2, updated_at=NOW() WHERE id=$3`,
		status, reason, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workflowRunRepository) ListStale(ctx context.Context, idleSince time.Time, limit int) ([]domain.WorkflowRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
        SELECT `+runColumns+` FROM workflow_runs
        WHERE status=$1 AND updated_at < $2
        ORDER BY updated_at ASC LIMIT $3`,
		domain.RunStatusRunning, idleSince, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.WorkflowRun
	for rows.Next() {
		var run domain.WorkflowRun
		if err := scanRun(rows, &run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *workflowRunRepository) LoadStep(ctx context.Context, runID, step string) (json.RawMessage, bool, error) {
	var result []byte
	err := r.pool.QueryRow(ctx,
		`SELECT result FROM workflow_steps WHERE run_id=$1 AND step=$2`, runID, step).Scan(&result)
	return stepResult(result, err)
}

// stepResult maps a missing row to "not done yet".
func stepResult(result []byte, err error) (json.RawMessage, bool, error) {
	if apperrors.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(result), true, nil
}

// SaveStep records a completed step once; a second save of the same step keeps the first result.
func (r *workflowRunRepository) SaveStep(ctx context.Context, runID, step string, result json.RawMessage) error {
	if _, err := r.pool.Exec(ctx, `
        INSERT INTO workflow_steps (run_id, step, result)
        VALUES ($1,$2,$3)
        ON CONFLICT (run_id, step) DO NOTHING`, runID, step, []byte(result)); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `UPDATE workflow_runs SET updated_at=NOW() WHERE id=$1`, runID)
	return err
}

func scanRun(row pgx.Row, run *domain.WorkflowRun) error {
	var payload []byte
	if err := row.Scan(
		&run.ID,
		&run.Workflow,
		&run.EventName,
		&payload,
		&run.Status,
		&run.Reason,
		&run.StartedAt,
		&run.UpdatedAt,
	); err != nil {
		return err
	}
	run.Payload = json.RawMessage(payload)
	return nil
}
