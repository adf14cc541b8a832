package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// ProgressAggregator derives a quest's progress from its tasks and persists
// the result.
type ProgressAggregator struct {
	store  ports.Store
	logger *zap.Logger
}

// NewProgressAggregator creates a ProgressAggregator over store.
func NewProgressAggregator(store ports.Store, logger *zap.Logger) *ProgressAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressAggregator{store: store, logger: logger}
}

// Recompute lists the owner's tasks under the quest, computes the progress
// percentage and stores it together with the completed flag. It returns the
// new progress. Calling it repeatedly with no task changes is a no-op.
func (a *ProgressAggregator) Recompute(ctx context.Context, questID, ownerID string) (int, error) {
	tasks, err := a.store.ListTasks(ctx, ownerID, ports.TaskFilter{QuestID: questID})
	if err != nil {
		return 0, fmt.Errorf("list tasks for quest %s: %w", questID, err)
	}

	progress := domain.ComputeProgress(tasks)
	if err := a.store.SetQuestProgress(ctx, questID, ownerID, progress, progress == 100); err != nil {
		return 0, fmt.Errorf("set progress for quest %s: %w", questID, err)
	}

	a.logger.Debug("quest progress recomputed",
		zap.String("quest_id", questID),
		zap.Int("tasks", len(tasks)),
		zap.Int("progress", progress),
	)
	return progress, nil
}
