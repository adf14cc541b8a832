package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

const questColumns = `id, user_id, title, is_main, quarter, completed, progress, created_at, updated_at`

func scanQuest(row pgx.Row) (domain.Quest, error) {
	var (
		q  domain.Quest
		id uuid.UUID
	)
	err := row.Scan(&id, &q.OwnerID, &q.Title, &q.IsMain, &q.Quarter,
		&q.Completed, &q.Progress, &q.CreatedAt, &q.UpdatedAt)
	q.ID = id.String()
	return q, err
}

// CreateQuest implements ports.Store.
func (s *Store) CreateQuest(ctx context.Context, q domain.Quest) (*domain.Quest, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := s.now()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO quests (id, user_id, title, is_main, quarter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+questColumns,
		q.ID, q.OwnerID, q.Title, q.IsMain, q.Quarter, now,
	)
	created, err := scanQuest(row)
	if err != nil {
		return nil, mapError("quest", "create", err)
	}
	return &created, nil
}

// GetQuest implements ports.Store.
func (s *Store) GetQuest(ctx context.Context, id, ownerID string) (*domain.Quest, error) {
	return getQuest(ctx, s.pool, id, ownerID)
}

func getQuest(ctx context.Context, db querier, id, ownerID string) (*domain.Quest, error) {
	if !validIDs(id) {
		return nil, ports.ErrNotFound
	}
	row := db.QueryRow(ctx,
		`SELECT `+questColumns+` FROM quests WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	q, err := scanQuest(row)
	if err != nil {
		return nil, mapError("quest", "get", err)
	}
	return &q, nil
}

// ListQuests implements ports.Store.
func (s *Store) ListQuests(ctx context.Context, ownerID string) ([]domain.Quest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questColumns+` FROM quests WHERE user_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, mapError("quest", "list", err)
	}
	quests, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Quest, error) {
		return scanQuest(r)
	})
	if err != nil {
		return nil, mapError("quest", "list", err)
	}
	return quests, nil
}

// UpdateQuest implements ports.Store. Only title and is_main are written.
func (s *Store) UpdateQuest(ctx context.Context, q domain.Quest) (*domain.Quest, error) {
	if !validIDs(q.ID) {
		return nil, ports.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE quests
		SET title = $3, is_main = $4, updated_at = $5
		WHERE id = $1 AND user_id = $2
		RETURNING `+questColumns,
		q.ID, q.OwnerID, q.Title, q.IsMain, s.now(),
	)
	updated, err := scanQuest(row)
	if err != nil {
		return nil, mapError("quest", "update", err)
	}
	return &updated, nil
}

// DeleteQuest implements ports.Store. Tasks are removed by the foreign key
// cascade.
func (s *Store) DeleteQuest(ctx context.Context, id, ownerID string) error {
	if !validIDs(id) {
		return ports.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM quests WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return mapError("quest", "delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// SetQuestProgress implements ports.Store.
func (s *Store) SetQuestProgress(ctx context.Context, id, ownerID string, progress int, completed bool) error {
	if !validIDs(id) {
		return ports.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE quests
		SET progress = $3, completed = $4, updated_at = $5
		WHERE id = $1 AND user_id = $2`,
		id, ownerID, progress, completed, s.now(),
	)
	if err != nil {
		return mapError("quest", "set_progress", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
