package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// CreateQuestInput holds the fields of a new quest.
type CreateQuestInput struct {
	OwnerID string `json:"-" validate:"required"`
	Title   string `json:"title" validate:"required,max=200"`
	IsMain  bool   `json:"is_main"`

	// Quarter defaults to the current quarter when empty.
	Quarter string `json:"quarter" validate:"omitempty,quarter"`
}

// QuarterSetupInput creates a quarter's main quest and its side quests in
// one call.
type QuarterSetupInput struct {
	OwnerID    string   `json:"-" validate:"required"`
	Quarter    string   `json:"quarter" validate:"omitempty,quarter"`
	MainQuest  string   `json:"main_quest" validate:"required,max=200"`
	SideQuests []string `json:"side_quests" validate:"max=20,dive,required,max=200"`
}

// UpdateQuestInput carries a partial quest update. Progress and completion
// are derived and cannot be set.
type UpdateQuestInput struct {
	ID      string `json:"-" validate:"required"`
	OwnerID string `json:"-" validate:"required"`
	Title   *string
	IsMain  *bool
}

// QuestService implements quest management for a single owner.
type QuestService struct {
	store    ports.Store
	progress *ProgressAggregator
	logger   *zap.Logger
	now      func() time.Time
}

// NewQuestService creates a QuestService.
func NewQuestService(store ports.Store, logger *zap.Logger) *QuestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestService{
		store:    store,
		progress: NewProgressAggregator(store, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Create adds a quest. Only one main quest is allowed per quarter.
func (s *QuestService) Create(ctx context.Context, in CreateQuestInput) (*domain.Quest, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput("quest", in); err != nil {
		return nil, err
	}
	if in.Quarter == "" {
		in.Quarter = domain.QuarterOf(s.now())
	}

	q := domain.Quest{OwnerID: in.OwnerID, Title: in.Title, IsMain: in.IsMain, Quarter: in.Quarter}
	if err := s.ensureMainFree(ctx, q); err != nil {
		return nil, err
	}

	created, err := s.store.CreateQuest(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create quest: %w", err)
	}
	s.logger.Info("quest created",
		zap.String("quest_id", created.ID),
		zap.String("owner_id", created.OwnerID),
		zap.Bool("is_main", created.IsMain),
		zap.String("quarter", created.Quarter),
	)
	return created, nil
}

// SetupQuarter creates the main quest followed by each side quest. If any
// insert fails the quests created by this call are removed again.
func (s *QuestService) SetupQuarter(ctx context.Context, in QuarterSetupInput) ([]domain.Quest, error) {
	in.MainQuest = strings.TrimSpace(in.MainQuest)
	sides := make([]string, 0, len(in.SideQuests))
	for _, title := range in.SideQuests {
		if t := strings.TrimSpace(title); t != "" {
			sides = append(sides, t)
		}
	}
	in.SideQuests = sides
	if err := validateInput("quarter setup", in); err != nil {
		return nil, err
	}
	if in.Quarter == "" {
		in.Quarter = domain.QuarterOf(s.now())
	}

	created := make([]domain.Quest, 0, len(sides)+1)
	rollback := func(cause error) error {
		errs := []error{cause}
		for _, q := range created {
			if err := s.store.DeleteQuest(ctx, q.ID, q.OwnerID); err != nil {
				errs = append(errs, fmt.Errorf("rollback quest %s: %w", q.ID, err))
			}
		}
		return errors.Join(errs...)
	}

	main, err := s.Create(ctx, CreateQuestInput{OwnerID: in.OwnerID, Title: in.MainQuest, IsMain: true, Quarter: in.Quarter})
	if err != nil {
		return nil, err
	}
	created = append(created, *main)

	for _, title := range sides {
		q, err := s.store.CreateQuest(ctx, domain.Quest{OwnerID: in.OwnerID, Title: title, Quarter: in.Quarter})
		if err != nil {
			return nil, rollback(fmt.Errorf("create side quest: %w", err))
		}
		created = append(created, *q)
	}
	return created, nil
}

// List returns the owner's quests, newest first.
func (s *QuestService) List(ctx context.Context, ownerID string) ([]domain.Quest, error) {
	quests, err := s.store.ListQuests(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	return quests, nil
}

// Get returns one quest.
func (s *QuestService) Get(ctx context.Context, id, ownerID string) (*domain.Quest, error) {
	q, err := s.store.GetQuest(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("quest %s: %w", id, err)
	}
	return q, nil
}

// Update changes the title or main flag of a quest.
func (s *QuestService) Update(ctx context.Context, in UpdateQuestInput) (*domain.Quest, error) {
	if err := validateInput("quest", in); err != nil {
		return nil, err
	}

	q, err := s.Get(ctx, in.ID, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, domain.BadRequest("quest", "title cannot be empty")
		}
		if len(title) > 200 {
			return nil, domain.BadRequest("quest", "title must be at most 200 characters")
		}
		q.Title = title
	}
	if in.IsMain != nil {
		q.IsMain = *in.IsMain
	}
	if err := s.ensureMainFree(ctx, *q); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateQuest(ctx, *q)
	if err != nil {
		return nil, fmt.Errorf("update quest: %w", err)
	}
	return updated, nil
}

// Delete removes a quest and its tasks.
func (s *QuestService) Delete(ctx context.Context, id, ownerID string) error {
	if err := s.store.DeleteQuest(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete quest %s: %w", id, err)
	}
	s.logger.Info("quest deleted", zap.String("quest_id", id), zap.String("owner_id", ownerID))
	return nil
}

// Recompute forces a progress refresh and returns the updated quest.
func (s *QuestService) Recompute(ctx context.Context, id, ownerID string) (*domain.Quest, error) {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return nil, err
	}
	if _, err := s.progress.Recompute(ctx, id, ownerID); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, ownerID)
}

// ensureMainFree reports ErrConflict when q would be a second main quest in
// its quarter. The database index enforces the same rule under races.
func (s *QuestService) ensureMainFree(ctx context.Context, q domain.Quest) error {
	if !q.IsMain {
		return nil
	}
	quests, err := s.store.ListQuests(ctx, q.OwnerID)
	if err != nil {
		return fmt.Errorf("list quests: %w", err)
	}
	for _, other := range quests {
		if other.IsMain && other.Quarter == q.Quarter && other.ID != q.ID {
			return fmt.Errorf("%w: %s already has a main quest", domain.ErrConflict, q.Quarter)
		}
	}
	return nil
}
