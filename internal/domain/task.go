package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// TaskStatus is the user-controlled lifecycle state of a task.
type TaskStatus string

// Task statuses.
const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusPending    TaskStatus = "pending"
	StatusCompleted  TaskStatus = "completed"
)

// validStatuses lists every accepted status in display order.
var validStatuses = []TaskStatus{StatusNotStarted, StatusInProgress, StatusCompleted, StatusPending}

// ParseStatus normalises user input into a TaskStatus. Matching is
// case-insensitive and treats spaces and hyphens as underscores, so
// "In Progress" and "in-progress" both yield StatusInProgress.
func ParseStatus(raw string) (TaskStatus, error) {
	s := cases.Fold().String(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for _, st := range validStatuses {
		if s == string(st) {
			return st, nil
		}
	}
	return "", BadRequest("task", "invalid status value. Must be one of: not_started, in_progress, completed, pending")
}

// Task is an actionable unit under a quest. Once completed it needs proof
// verification to earn points.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"user_id"`
	QuestID     string     `json:"quest_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	// CompletedAt is set once, when the status first enters completed from a
	// non-completed state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Verified is true once a proof has been accepted. It is reset whenever
	// the task is (re)marked completed.
	Verified bool `json:"verified"`

	// ProofURL is a data URI or stored object reference of the accepted proof.
	ProofURL string `json:"proof_url,omitempty"`

	// PointsAwarded is the current award for the task.
	PointsAwarded int `json:"points_awarded"`

	// VerificationNotes holds the raw classifier output for audit.
	VerificationNotes string `json:"verification_notes,omitempty"`

	// RetryCount counts retry adjustments applied to this task.
	RetryCount int `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsVerifiedComplete reports whether the task counts toward quest progress.
func (t Task) IsVerifiedComplete() bool {
	return t.Status == StatusCompleted && t.Verified
}

// AwaitingProof reports whether the task accepts a first verification.
func (t Task) AwaitingProof() bool {
	return t.Status == StatusCompleted && !t.Verified
}

// ApplyStatus evaluates a status update against the task and returns the
// resulting task. Entering completed from another status stamps
// CompletedAt; an update whose target is completed always clears Verified,
// so re-completion requires fresh proof. Other targets leave Verified as is.
func ApplyStatus(t Task, next TaskStatus, now time.Time) Task {
	if next == StatusCompleted {
		if t.Status != StatusCompleted {
			ts := now
			t.CompletedAt = &ts
		}
		t.Verified = false
	}
	t.Status = next
	t.UpdatedAt = now
	return t
}

// TaskPatch carries the optional fields of a task update. Nil fields are
// left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *TaskStatus
}

// Apply returns the task with the patch applied, routing status changes
// through ApplyStatus.
func (p TaskPatch) Apply(t Task, now time.Time) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.Status != nil {
		t = ApplyStatus(t, *p.Status, now)
	}
	t.UpdatedAt = now
	return t
}
