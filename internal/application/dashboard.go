package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

// topTaskLimit bounds the scoreboard list.
const topTaskLimit = 5

// Dashboard summarises an owner's quests, tasks and score.
type Dashboard struct {
	Quests         []domain.Quest `json:"quests"`
	Tasks          []domain.Task  `json:"tasks"`
	TotalScore     int            `json:"total_score"`
	RetriesLeft    int            `json:"retry_chances"`
	CurrentQuarter string         `json:"current_quarter"`
	VerifiedCount  int            `json:"completed_tasks"`
	TopTasks       []domain.Task  `json:"top_tasks"`
}

// DashboardService assembles dashboards.
type DashboardService struct {
	store     ports.Store
	allowance int
	now       func() time.Time
}

// NewDashboardService creates a DashboardService. allowance is the default
// per-quarter retry allowance reported for owners without a bucket.
func NewDashboardService(store ports.Store, allowance int) *DashboardService {
	return &DashboardService{store: store, allowance: allowance, now: time.Now}
}

// Get loads quests, tasks and the retry allowance concurrently and derives
// the score summary.
func (s *DashboardService) Get(ctx context.Context, ownerID string) (*Dashboard, error) {
	d := &Dashboard{CurrentQuarter: domain.QuarterOf(s.now())}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quests, err := s.store.ListQuests(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("list quests: %w", err)
		}
		d.Quests = quests
		return nil
	})
	g.Go(func() error {
		tasks, err := s.store.ListTasks(gctx, ownerID, ports.TaskFilter{})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		d.Tasks = tasks
		return nil
	})
	g.Go(func() error {
		left, err := s.store.RemainingRetries(gctx, ownerID, d.CurrentQuarter, s.allowance)
		if err != nil {
			return fmt.Errorf("retry allowance: %w", err)
		}
		d.RetriesLeft = left
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := make([]domain.Task, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		if !t.IsVerifiedComplete() {
			continue
		}
		d.VerifiedCount++
		d.TotalScore += t.PointsAwarded
		scored = append(scored, t)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].PointsAwarded > scored[j].PointsAwarded
	})
	if len(scored) > topTaskLimit {
		scored = scored[:topTaskLimit]
	}
	d.TopTasks = scored
	return d, nil
}
