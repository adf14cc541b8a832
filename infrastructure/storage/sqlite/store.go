// Package sqlite implements ports.Store on SQLite through GORM. It backs
// local runs and tests that need a real database without a server.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

const mainQuestIndex = `CREATE UNIQUE INDEX IF NOT EXISTS quests_one_main_per_quarter
	ON quests (user_id, quarter) WHERE is_main = 1`

// Store is the SQLite persistence gateway.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New opens the database at dsn and migrates the schema. An empty dsn
// defaults to questlog.db in the working directory.
func New(dsn string, zl *zap.Logger) (*Store, error) {
	if dsn == "" {
		dsn = "questlog.db"
	}
	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}
	if zl == nil {
		zl = zap.NewNop()
	}

	dbLogger := logger.New(
		zap.NewStdLog(zl.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows one writer; a single connection serialises writes
	// instead of surfacing SQLITE_BUSY to callers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&questModel{}, &taskModel{}, &allowanceModel{}); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	if err := db.Exec(mainQuestIndex).Error; err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity for /healthz.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

func mapError(entity, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ports.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %s: %w", entity, op, ports.ErrConflict)
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrNoAllowance),
		errors.Is(err, ports.ErrNotEligible):
		return err
	}
	return ports.NewStoreError(entity, op, err)
}

// CreateQuest implements ports.Store.
func (s *Store) CreateQuest(ctx context.Context, q domain.Quest) (*domain.Quest, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := s.now()
	q.CreatedAt, q.UpdatedAt = now, now
	q.Progress, q.Completed = 0, false

	m := questFromDomain(q)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, mapError("quest", "create", err)
	}
	created := m.toDomain()
	return &created, nil
}

// GetQuest implements ports.Store.
func (s *Store) GetQuest(ctx context.Context, id, ownerID string) (*domain.Quest, error) {
	var m questModel
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).First(&m).Error
	if err != nil {
		return nil, mapError("quest", "get", err)
	}
	q := m.toDomain()
	return &q, nil
}

// ListQuests implements ports.Store.
func (s *Store) ListQuests(ctx context.Context, ownerID string) ([]domain.Quest, error) {
	var rows []questModel
	err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).
		Order("created_at DESC").Order("rowid DESC").
		Find(&rows).Error
	if err != nil {
		return nil, mapError("quest", "list", err)
	}
	quests := make([]domain.Quest, 0, len(rows))
	for _, m := range rows {
		quests = append(quests, m.toDomain())
	}
	return quests, nil
}

// UpdateQuest implements ports.Store. Only title and is_main are written.
func (s *Store) UpdateQuest(ctx context.Context, q domain.Quest) (*domain.Quest, error) {
	res := s.db.WithContext(ctx).Model(&questModel{}).
		Where("id = ? AND user_id = ?", q.ID, q.OwnerID).
		Updates(map[string]any{"title": q.Title, "is_main": q.IsMain, "updated_at": s.now()})
	if res.Error != nil {
		return nil, mapError("quest", "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ports.ErrNotFound
	}
	return s.GetQuest(ctx, q.ID, q.OwnerID)
}

// DeleteQuest implements ports.Store. The quest and its tasks are removed
// in one transaction.
func (s *Store) DeleteQuest(ctx context.Context, id, ownerID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, ownerID).Delete(&questModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ports.ErrNotFound
		}
		return tx.Where("quest_id = ? AND user_id = ?", id, ownerID).Delete(&taskModel{}).Error
	})
	return mapError("quest", "delete", err)
}

// SetQuestProgress implements ports.Store.
func (s *Store) SetQuestProgress(ctx context.Context, id, ownerID string, progress int, completed bool) error {
	res := s.db.WithContext(ctx).Model(&questModel{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(map[string]any{"progress": progress, "completed": completed, "updated_at": s.now()})
	if res.Error != nil {
		return mapError("quest", "set_progress", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// CreateTask implements ports.Store. The parent quest must belong to the
// same owner.
func (s *Store) CreateTask(ctx context.Context, t domain.Task) (*domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now

	m := taskFromDomain(t)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&questModel{}).Where("id = ? AND user_id = ?", t.QuestID, t.OwnerID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ports.ErrNotFound
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, mapError("task", "create", err)
	}
	created := m.toDomain()
	return &created, nil
}

// GetTask implements ports.Store.
func (s *Store) GetTask(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	return getTask(s.db.WithContext(ctx), id, ownerID)
}

func getTask(db *gorm.DB, id, ownerID string) (*domain.Task, error) {
	var m taskModel
	if err := db.Where("id = ? AND user_id = ?", id, ownerID).First(&m).Error; err != nil {
		return nil, mapError("task", "get", err)
	}
	t := m.toDomain()
	return &t, nil
}

// ListTasks implements ports.Store.
func (s *Store) ListTasks(ctx context.Context, ownerID string, filter ports.TaskFilter) ([]domain.Task, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if filter.QuestID != "" {
		q = q.Where("quest_id = ?", filter.QuestID)
	}

	var rows []taskModel
	if err := q.Order("created_at DESC").Order("rowid DESC").Find(&rows).Error; err != nil {
		return nil, mapError("task", "list", err)
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, m := range rows {
		tasks = append(tasks, m.toDomain())
	}
	return tasks, nil
}

// UpdateTask implements ports.Store. The read and the write share one
// transaction, so status-derived columns come from the row being replaced.
func (s *Store) UpdateTask(ctx context.Context, id, ownerID string, patch domain.TaskPatch, at time.Time) (*domain.Task, error) {
	var task *domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := getTask(tx, id, ownerID)
		if err != nil {
			return err
		}
		next := patch.Apply(*cur, at)
		if err := tx.Model(&taskModel{}).
			Where("id = ? AND user_id = ?", id, ownerID).
			Updates(patchColumns(patch, next)).Error; err != nil {
			return err
		}
		task, err = getTask(tx, id, ownerID)
		return err
	})
	if err != nil {
		return nil, mapError("task", "update", err)
	}
	return task, nil
}

// patchColumns lists only the columns the patch touches.
func patchColumns(p domain.TaskPatch, next domain.Task) map[string]any {
	cols := map[string]any{"updated_at": next.UpdatedAt}
	if p.Title != nil {
		cols["title"] = next.Title
	}
	if p.Description != nil {
		cols["description"] = next.Description
	}
	if p.DueDate != nil {
		cols["due_date"] = next.DueDate
	}
	if p.Status != nil {
		cols["status"] = string(next.Status)
		cols["completed_at"] = next.CompletedAt
		cols["verified"] = next.Verified
	}
	return cols
}

// ineligible explains why a guarded task write matched no row.
func ineligible(tx *gorm.DB, id, ownerID string) error {
	if _, err := getTask(tx, id, ownerID); err != nil {
		return err
	}
	return ports.ErrNotEligible
}

// DeleteTask implements ports.Store.
func (s *Store) DeleteTask(ctx context.Context, id, ownerID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).Delete(&taskModel{})
	if res.Error != nil {
		return mapError("task", "delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ApplyVerification implements ports.Store.
func (s *Store) ApplyVerification(ctx context.Context, id, ownerID string, w ports.VerificationWrite) (*domain.Task, error) {
	var task *domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&taskModel{}).
			Where("id = ? AND user_id = ? AND status = ? AND verified = ?", id, ownerID, string(domain.StatusCompleted), false).
			Updates(map[string]any{
				"proof_url":          w.ProofURL,
				"verified":           true,
				"points_awarded":     w.Points,
				"verification_notes": w.Notes,
				"updated_at":         w.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ineligible(tx, id, ownerID)
		}
		var err error
		task, err = getTask(tx, id, ownerID)
		return err
	})
	if err != nil {
		return nil, mapError("task", "apply_verification", err)
	}
	return task, nil
}

// ApplyRetryAward implements ports.Store. The allowance decrement and the
// task update share one transaction.
func (s *Store) ApplyRetryAward(ctx context.Context, id, ownerID string, w ports.RetryWrite) (*domain.Task, int, error) {
	var (
		task      *domain.Task
		remaining int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bucket := allowanceModel{UserID: ownerID, Quarter: w.Quarter, Remaining: w.DefaultAllowance, UpdatedAt: w.At}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&bucket).Error; err != nil {
			return err
		}

		res := tx.Model(&allowanceModel{}).
			Where("user_id = ? AND quarter = ? AND remaining > 0", ownerID, w.Quarter).
			Updates(map[string]any{"remaining": gorm.Expr("remaining - 1"), "updated_at": w.At})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ports.ErrNoAllowance
		}

		res = tx.Model(&taskModel{}).
			Where("id = ? AND user_id = ? AND status = ?", id, ownerID, string(domain.StatusCompleted)).
			Updates(map[string]any{
				"proof_url":          w.ProofURL,
				"verified":           true,
				"points_awarded":     w.Points,
				"verification_notes": w.Notes,
				"retry_count":        gorm.Expr("retry_count + 1"),
				"updated_at":         w.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ineligible(tx, id, ownerID)
		}

		var b allowanceModel
		if err := tx.Where("user_id = ? AND quarter = ?", ownerID, w.Quarter).First(&b).Error; err != nil {
			return err
		}
		remaining = b.Remaining

		var err error
		task, err = getTask(tx, id, ownerID)
		return err
	})
	if err != nil {
		return nil, 0, mapError("task", "apply_retry_award", err)
	}
	return task, remaining, nil
}

// RemainingRetries implements ports.Store.
func (s *Store) RemainingRetries(ctx context.Context, ownerID, quarter string, defaultAllowance int) (int, error) {
	var b allowanceModel
	err := s.db.WithContext(ctx).Where("user_id = ? AND quarter = ?", ownerID, quarter).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultAllowance, nil
	}
	if err != nil {
		return 0, mapError("retry_allowance", "get", err)
	}
	return b.Remaining, nil
}

var _ ports.Store = (*Store)(nil)
