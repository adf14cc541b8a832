package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "no rows", err: pgx.ErrNoRows, target: domain.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), target: domain.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: codeUniqueViolation}, target: domain.ErrConflict},
		{name: "bad uuid text", err: &pgconn.PgError{Code: codeInvalidText}, target: domain.ErrNotFound},
		{name: "missing parent", err: &pgconn.PgError{Code: codeForeignKeyViolation}, target: domain.ErrNotFound},
		{name: "allowance exhausted", err: ports.ErrNoAllowance, target: domain.ErrQuotaExhausted},
		{name: "driver failure", err: errors.New("conn reset"), target: domain.ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError("task", "get", tt.err), tt.target)
		})
	}

	assert.NoError(t, mapError("task", "get", nil))
}

func TestMapError_StoreErrorKeepsCause(t *testing.T) {
	cause := errors.New("conn reset")
	err := mapError("quest", "list", cause)

	var storeErr *ports.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "quest", storeErr.Entity)
	assert.Equal(t, "list", storeErr.Operation)
	assert.ErrorIs(t, err, cause)
}

func TestValidIDs(t *testing.T) {
	assert.True(t, validIDs(uuid.NewString(), uuid.NewString()))
	assert.False(t, validIDs(uuid.NewString(), "task-1"))
	assert.False(t, validIDs(""))
}

func TestMigrationsEmbedded(t *testing.T) {
	body, err := migrationFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "quests_one_main_per_quarter")
	assert.Contains(t, string(body), "ON DELETE CASCADE")
}

// newIntegrationStore connects to QUESTLOG_TEST_POSTGRES_DSN or skips.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("QUESTLOG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUESTLOG_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn, Options{MaxConns: 4}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStore_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	owner := "user-" + uuid.NewString()
	quarter := "Q3 2025"

	main, err := s.CreateQuest(ctx, domain.Quest{OwnerID: owner, Title: "Ship it", IsMain: true, Quarter: quarter})
	require.NoError(t, err)

	_, err = s.CreateQuest(ctx, domain.Quest{OwnerID: owner, Title: "Another main", IsMain: true, Quarter: quarter})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = s.GetQuest(ctx, main.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	task, err := s.CreateTask(ctx, domain.Task{OwnerID: owner, QuestID: main.ID, Title: "Write tests"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, task.Status)

	_, err = s.CreateTask(ctx, domain.Task{OwnerID: "someone-else", QuestID: main.ID, Title: "Sneak in"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	title := "Write more tests"
	renamed, err := s.UpdateTask(ctx, task.ID, owner, domain.TaskPatch{Title: &title}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, title, renamed.Title)
	assert.Equal(t, domain.StatusPending, renamed.Status)

	_, err = s.ApplyVerification(ctx, task.ID, owner, ports.VerificationWrite{Points: 5, At: time.Now()})
	assert.ErrorIs(t, err, domain.ErrTaskNotEligible)

	done := domain.StatusCompleted
	saved, err := s.UpdateTask(ctx, task.ID, owner, domain.TaskPatch{Status: &done}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, saved.Status)
	assert.NotNil(t, saved.CompletedAt)

	at := time.Now().UTC().Truncate(time.Microsecond)
	verified, err := s.ApplyVerification(ctx, task.ID, owner, ports.VerificationWrite{
		ProofURL: "data:image/png;base64,AA==", Points: 5, Notes: "##yes## ok", At: at,
	})
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, 5, verified.PointsAwarded)

	_, err = s.ApplyVerification(ctx, task.ID, "someone-else", ports.VerificationWrite{Points: 5, At: at})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	edited, err := s.UpdateTask(ctx, task.ID, owner, domain.TaskPatch{Title: &title}, time.Now())
	require.NoError(t, err)
	assert.True(t, edited.Verified, "field edits keep verification")
	assert.Equal(t, 5, edited.PointsAwarded)

	require.NoError(t, s.SetQuestProgress(ctx, main.ID, owner, 100, true))
	got, err := s.GetQuest(ctx, main.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.True(t, got.Completed)

	left, err := s.RemainingRetries(ctx, owner, quarter, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	w := ports.RetryWrite{Quarter: quarter, DefaultAllowance: 2, Points: 20, Notes: "##yes## retry", At: at}
	retried, left, err := s.ApplyRetryAward(ctx, task.ID, owner, w)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
	assert.Equal(t, 20, retried.PointsAwarded)
	assert.Equal(t, 1, retried.RetryCount)

	_, left, err = s.ApplyRetryAward(ctx, task.ID, owner, w)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, _, err = s.ApplyRetryAward(ctx, task.ID, owner, w)
	assert.ErrorIs(t, err, domain.ErrQuotaExhausted)

	tasks, err := s.ListTasks(ctx, owner, ports.TaskFilter{QuestID: main.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].RetryCount)

	require.NoError(t, s.DeleteQuest(ctx, main.ID, owner))
	_, err = s.GetTask(ctx, task.ID, owner)
	assert.ErrorIs(t, err, domain.ErrNotFound, "tasks cascade with their quest")
}
