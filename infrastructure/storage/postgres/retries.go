package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// ApplyRetryAward implements ports.Store. The allowance decrement and the
// task update share one transaction; either both land or neither does.
func (s *Store) ApplyRetryAward(ctx context.Context, id, ownerID string, w ports.RetryWrite) (*domain.Task, int, error) {
	if !validIDs(id) {
		return nil, 0, ports.ErrNotFound
	}

	var (
		task      domain.Task
		remaining int
	)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO retry_allowances (user_id, quarter, remaining, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, quarter) DO NOTHING`,
			ownerID, w.Quarter, w.DefaultAllowance, w.At,
		); err != nil {
			return err
		}

		err := tx.QueryRow(ctx, `
			UPDATE retry_allowances
			SET remaining = remaining - 1, updated_at = $3
			WHERE user_id = $1 AND quarter = $2 AND remaining > 0
			RETURNING remaining`,
			ownerID, w.Quarter, w.At,
		).Scan(&remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.ErrNoAllowance
		}
		if err != nil {
			return err
		}

		task, err = scanTask(tx.QueryRow(ctx, `
			UPDATE tasks
			SET proof_url = $3, verified = true, points_awarded = $4,
				verification_notes = $5, retry_count = retry_count + 1, updated_at = $6
			WHERE id = $1 AND user_id = $2 AND status = 'completed'
			RETURNING `+taskColumns,
			id, ownerID, w.ProofURL, w.Points, w.Notes, w.At,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return s.ineligible(ctx, tx, id, ownerID)
		}
		return err
	})
	if err != nil {
		return nil, 0, mapError("task", "apply_retry_award", err)
	}
	return &task, remaining, nil
}

// RemainingRetries implements ports.Store.
func (s *Store) RemainingRetries(ctx context.Context, ownerID, quarter string, defaultAllowance int) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx,
		`SELECT remaining FROM retry_allowances WHERE user_id = $1 AND quarter = $2`,
		ownerID, quarter,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return defaultAllowance, nil
	}
	if err != nil {
		return 0, mapError("retry_allowance", "get", err)
	}
	return remaining, nil
}
