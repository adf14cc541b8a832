package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// CreateTaskInput holds the fields of a new task.
type CreateTaskInput struct {
	OwnerID     string     `json:"-" validate:"required"`
	QuestID     string     `json:"quest_id" validate:"required"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateTaskInput carries a partial task update. Status is raw user input
// and is parsed leniently.
type UpdateTaskInput struct {
	ID          string `json:"-" validate:"required"`
	OwnerID     string `json:"-" validate:"required"`
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *string
}

// TaskService implements task management. Every change that can affect a
// quest's progress triggers a recompute.
type TaskService struct {
	store    ports.Store
	progress *ProgressAggregator
	logger   *zap.Logger
	now      func() time.Time
}

// NewTaskService creates a TaskService.
func NewTaskService(store ports.Store, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{
		store:    store,
		progress: NewProgressAggregator(store, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Create adds a pending task under one of the owner's quests.
func (s *TaskService) Create(ctx context.Context, in CreateTaskInput) (*domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.QuestID = strings.TrimSpace(in.QuestID)
	if err := validateInput("task", in); err != nil {
		return nil, err
	}

	created, err := s.store.CreateTask(ctx, domain.Task{
		OwnerID:     in.OwnerID,
		QuestID:     in.QuestID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		DueDate:     in.DueDate,
		Status:      domain.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.recompute(ctx, created.QuestID, created.OwnerID)
	return created, nil
}

// List returns the owner's tasks, optionally limited to one quest.
func (s *TaskService) List(ctx context.Context, ownerID, questID string) ([]domain.Task, error) {
	tasks, err := s.store.ListTasks(ctx, ownerID, ports.TaskFilter{QuestID: questID})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	t, err := s.store.GetTask(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

// Update applies a partial update in one store write. A status of
// completed stamps completed_at on first entry and always clears the
// verified flag; edits without a status never touch verification state.
func (s *TaskService) Update(ctx context.Context, in UpdateTaskInput) (*domain.Task, error) {
	if err := validateInput("task", in); err != nil {
		return nil, err
	}

	patch, err := buildTaskPatch(in)
	if err != nil {
		return nil, err
	}

	saved, err := s.store.UpdateTask(ctx, in.ID, in.OwnerID, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", in.ID, err)
	}

	s.recompute(ctx, saved.QuestID, saved.OwnerID)
	return saved, nil
}

// Delete removes a task and refreshes its quest's progress.
func (s *TaskService) Delete(ctx context.Context, id, ownerID string) error {
	t, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	s.recompute(ctx, t.QuestID, ownerID)
	return nil
}

func (s *TaskService) recompute(ctx context.Context, questID, ownerID string) {
	if _, err := s.progress.Recompute(ctx, questID, ownerID); err != nil {
		s.logger.Warn("progress recompute failed",
			zap.String("quest_id", questID),
			zap.Error(err),
		)
	}
}

// buildTaskPatch validates the optional fields and converts them into a
// domain.TaskPatch.
func buildTaskPatch(in UpdateTaskInput) (domain.TaskPatch, error) {
	verr := domain.NewValidationError("task")
	patch := domain.TaskPatch{DueDate: in.DueDate}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		switch {
		case title == "":
			verr.AddError("title cannot be empty")
		case len(title) > 200:
			verr.AddError("title must be at most 200 characters")
		default:
			patch.Title = &title
		}
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if len(desc) > 2000 {
			verr.AddError("description must be at most 2000 characters")
		}
		patch.Description = &desc
	}
	if in.Status != nil {
		st, err := domain.ParseStatus(*in.Status)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.Status = &st
	}

	if verr.HasErrors() {
		return domain.TaskPatch{}, verr
	}
	return patch, nil
}
