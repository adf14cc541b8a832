package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

const taskColumns = `id, user_id, quest_id, title, description, status, due_date, completed_at,
	verified, proof_url, points_awarded, verification_notes, retry_count, created_at, updated_at`

// querier is the subset of pgxpool.Pool and pgx.Tx used by shared helpers.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t       domain.Task
		id      uuid.UUID
		questID uuid.UUID
		status  string
	)
	err := row.Scan(&id, &t.OwnerID, &questID, &t.Title, &t.Description, &status,
		&t.DueDate, &t.CompletedAt, &t.Verified, &t.ProofURL, &t.PointsAwarded,
		&t.VerificationNotes, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt)
	t.ID = id.String()
	t.QuestID = questID.String()
	t.Status = domain.TaskStatus(status)
	return t, err
}

// CreateTask implements ports.Store. The insert only happens when the
// parent quest belongs to the same owner.
func (s *Store) CreateTask(ctx context.Context, t domain.Task) (*domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	if !validIDs(t.ID, t.QuestID) {
		return nil, ports.ErrNotFound
	}
	now := s.now()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, user_id, quest_id, title, description, status, due_date,
			points_awarded, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $9
		WHERE EXISTS (SELECT 1 FROM quests WHERE id = $3 AND user_id = $2)
		RETURNING `+taskColumns,
		t.ID, t.OwnerID, t.QuestID, t.Title, t.Description, string(t.Status), t.DueDate,
		t.PointsAwarded, now,
	)
	created, err := scanTask(row)
	if err != nil {
		return nil, mapError("task", "create", err)
	}
	return &created, nil
}

// GetTask implements ports.Store.
func (s *Store) GetTask(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	if !validIDs(id) {
		return nil, ports.ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	t, err := scanTask(row)
	if err != nil {
		return nil, mapError("task", "get", err)
	}
	return &t, nil
}

// ListTasks implements ports.Store.
func (s *Store) ListTasks(ctx context.Context, ownerID string, filter ports.TaskFilter) ([]domain.Task, error) {
	var (
		query strings.Builder
		args  = []any{ownerID}
	)
	query.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`)
	if filter.QuestID != "" {
		if !validIDs(filter.QuestID) {
			return []domain.Task{}, nil
		}
		args = append(args, filter.QuestID)
		fmt.Fprintf(&query, ` AND quest_id = $%d`, len(args))
	}
	query.WriteString(` ORDER BY created_at DESC`)

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, mapError("task", "list", err)
	}
	tasks, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Task, error) {
		return scanTask(r)
	})
	if err != nil {
		return nil, mapError("task", "list", err)
	}
	return tasks, nil
}

// UpdateTask implements ports.Store as one conditional UPDATE. Unset patch
// fields keep the stored value, and the status-derived columns are computed
// from the row being replaced, never from an earlier read.
func (s *Store) UpdateTask(ctx context.Context, id, ownerID string, patch domain.TaskPatch, at time.Time) (*domain.Task, error) {
	if !validIDs(id) {
		return nil, ports.ErrNotFound
	}
	var status *string
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = COALESCE($3::text, title),
			description = COALESCE($4::text, description),
			due_date = COALESCE($5::timestamptz, due_date),
			status = COALESCE($6::text, status),
			completed_at = CASE
				WHEN $6::text = 'completed' AND status <> 'completed' THEN $7
				ELSE completed_at END,
			verified = CASE WHEN $6::text = 'completed' THEN false ELSE verified END,
			updated_at = $7
		WHERE id = $1 AND user_id = $2
		RETURNING `+taskColumns,
		id, ownerID, patch.Title, patch.Description, patch.DueDate, status, at,
	)
	updated, err := scanTask(row)
	if err != nil {
		return nil, mapError("task", "update", err)
	}
	return &updated, nil
}

// DeleteTask implements ports.Store.
func (s *Store) DeleteTask(ctx context.Context, id, ownerID string) error {
	if !validIDs(id) {
		return ports.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return mapError("task", "delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ApplyVerification implements ports.Store as a single conditional UPDATE
// guarded on the task still awaiting proof.
func (s *Store) ApplyVerification(ctx context.Context, id, ownerID string, w ports.VerificationWrite) (*domain.Task, error) {
	if !validIDs(id) {
		return nil, ports.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks
		SET proof_url = $3, verified = true, points_awarded = $4,
			verification_notes = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2 AND status = 'completed' AND NOT verified
		RETURNING `+taskColumns,
		id, ownerID, w.ProofURL, w.Points, w.Notes, w.At,
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ineligible(ctx, s.pool, id, ownerID)
	}
	if err != nil {
		return nil, mapError("task", "apply_verification", err)
	}
	return &t, nil
}

// ineligible explains why a guarded task write matched no row: the task is
// gone or not owned (ErrNotFound), or it is in the wrong state.
func (s *Store) ineligible(ctx context.Context, q querier, id, ownerID string) error {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND user_id = $2)`,
		id, ownerID,
	).Scan(&exists)
	switch {
	case err != nil:
		return mapError("task", "get", err)
	case !exists:
		return ports.ErrNotFound
	}
	return ports.ErrNotEligible
}
