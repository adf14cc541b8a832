package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

type allowanceKey struct {
	owner   string
	quarter string
}

// MemoryStore is an in-memory ports.Store for tests. It enforces the same
// owner scoping, main-quest uniqueness and atomic allowance rules as the
// database bindings.
type MemoryStore struct {
	mu         sync.Mutex
	quests     map[string]domain.Quest
	tasks      map[string]domain.Task
	allowances map[allowanceKey]int
	seq        map[string]int

	// Now supplies timestamps. Tests may replace it.
	Now func() time.Time

	// FailWith, when set, is returned by every operation.
	FailWith error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quests:     make(map[string]domain.Quest),
		tasks:      make(map[string]domain.Task),
		allowances: make(map[allowanceKey]int),
		seq:        make(map[string]int),
		Now:        time.Now,
	}
}

// insertion order breaks created_at ties so listings stay newest first.
func (s *MemoryStore) nextSeq(id string) {
	s.seq[id] = len(s.seq)
}

func (s *MemoryStore) mainTaken(q domain.Quest) bool {
	if !q.IsMain {
		return false
	}
	for _, other := range s.quests {
		if other.ID != q.ID && other.OwnerID == q.OwnerID && other.Quarter == q.Quarter && other.IsMain {
			return true
		}
	}
	return false
}

// CreateQuest implements ports.Store.
func (s *MemoryStore) CreateQuest(_ context.Context, q domain.Quest) (*domain.Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if s.mainTaken(q) {
		return nil, fmt.Errorf("quest create: %w", ports.ErrConflict)
	}
	now := s.Now()
	q.CreatedAt, q.UpdatedAt = now, now
	q.Progress, q.Completed = 0, false
	s.quests[q.ID] = q
	s.nextSeq(q.ID)
	return &q, nil
}

// GetQuest implements ports.Store.
func (s *MemoryStore) GetQuest(_ context.Context, id, ownerID string) (*domain.Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	q, ok := s.quests[id]
	if !ok || q.OwnerID != ownerID {
		return nil, ports.ErrNotFound
	}
	return &q, nil
}

// ListQuests implements ports.Store.
func (s *MemoryStore) ListQuests(_ context.Context, ownerID string) ([]domain.Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	out := make([]domain.Quest, 0)
	for _, q := range s.quests {
		if q.OwnerID == ownerID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.newer(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) newer(a string, at time.Time, b string, bt time.Time) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return s.seq[a] > s.seq[b]
}

// UpdateQuest implements ports.Store.
func (s *MemoryStore) UpdateQuest(_ context.Context, q domain.Quest) (*domain.Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	cur, ok := s.quests[q.ID]
	if !ok || cur.OwnerID != q.OwnerID {
		return nil, ports.ErrNotFound
	}
	cur.Title = q.Title
	cur.IsMain = q.IsMain
	if s.mainTaken(cur) {
		return nil, fmt.Errorf("quest update: %w", ports.ErrConflict)
	}
	cur.UpdatedAt = s.Now()
	s.quests[cur.ID] = cur
	return &cur, nil
}

// DeleteQuest implements ports.Store.
func (s *MemoryStore) DeleteQuest(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	q, ok := s.quests[id]
	if !ok || q.OwnerID != ownerID {
		return ports.ErrNotFound
	}
	delete(s.quests, id)
	for tid, t := range s.tasks {
		if t.QuestID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

// SetQuestProgress implements ports.Store.
func (s *MemoryStore) SetQuestProgress(_ context.Context, id, ownerID string, progress int, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	q, ok := s.quests[id]
	if !ok || q.OwnerID != ownerID {
		return ports.ErrNotFound
	}
	q.Progress, q.Completed = progress, completed
	q.UpdatedAt = s.Now()
	s.quests[id] = q
	return nil
}

// CreateTask implements ports.Store.
func (s *MemoryStore) CreateTask(_ context.Context, t domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	q, ok := s.quests[t.QuestID]
	if !ok || q.OwnerID != t.OwnerID {
		return nil, ports.ErrNotFound
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	now := s.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tasks[t.ID] = t
	s.nextSeq(t.ID)
	return &t, nil
}

// GetTask implements ports.Store.
func (s *MemoryStore) GetTask(_ context.Context, id, ownerID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, ports.ErrNotFound
	}
	return &t, nil
}

// ListTasks implements ports.Store.
func (s *MemoryStore) ListTasks(_ context.Context, ownerID string, filter ports.TaskFilter) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	out := make([]domain.Task, 0)
	for _, t := range s.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if filter.QuestID != "" && t.QuestID != filter.QuestID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.newer(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	return out, nil
}

// UpdateTask implements ports.Store.
func (s *MemoryStore) UpdateTask(_ context.Context, id, ownerID string, patch domain.TaskPatch, at time.Time) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	cur, ok := s.tasks[id]
	if !ok || cur.OwnerID != ownerID {
		return nil, ports.ErrNotFound
	}
	next := patch.Apply(cur, at)
	s.tasks[id] = next
	return &next, nil
}

// DeleteTask implements ports.Store.
func (s *MemoryStore) DeleteTask(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return ports.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// ApplyVerification implements ports.Store.
func (s *MemoryStore) ApplyVerification(_ context.Context, id, ownerID string, w ports.VerificationWrite) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, ports.ErrNotFound
	}
	if !t.AwaitingProof() {
		return nil, ports.ErrNotEligible
	}
	t.ProofURL = w.ProofURL
	t.Verified = true
	t.PointsAwarded = w.Points
	t.VerificationNotes = w.Notes
	t.UpdatedAt = w.At
	s.tasks[id] = t
	return &t, nil
}

// ApplyRetryAward implements ports.Store.
func (s *MemoryStore) ApplyRetryAward(_ context.Context, id, ownerID string, w ports.RetryWrite) (*domain.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, 0, s.FailWith
	}

	key := allowanceKey{owner: ownerID, quarter: w.Quarter}
	remaining, ok := s.allowances[key]
	if !ok {
		remaining = w.DefaultAllowance
	}
	if remaining <= 0 {
		return nil, 0, ports.ErrNoAllowance
	}

	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, 0, ports.ErrNotFound
	}
	if t.Status != domain.StatusCompleted {
		return nil, 0, ports.ErrNotEligible
	}

	remaining--
	s.allowances[key] = remaining

	t.ProofURL = w.ProofURL
	t.Verified = true
	t.PointsAwarded = w.Points
	t.VerificationNotes = w.Notes
	t.RetryCount++
	t.UpdatedAt = w.At
	s.tasks[id] = t
	return &t, remaining, nil
}

// RemainingRetries implements ports.Store.
func (s *MemoryStore) RemainingRetries(_ context.Context, ownerID, quarter string, defaultAllowance int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}

	if remaining, ok := s.allowances[allowanceKey{owner: ownerID, quarter: quarter}]; ok {
		return remaining, nil
	}
	return defaultAllowance, nil
}

// SetRemainingRetries seeds an allowance bucket.
func (s *MemoryStore) SetRemainingRetries(ownerID, quarter string, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[allowanceKey{owner: ownerID, quarter: quarter}] = remaining
}

var _ ports.Store = (*MemoryStore)(nil)
