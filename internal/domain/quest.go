package domain

import (
	"fmt"
	"time"
)

// Quest is a user-defined goal for a quarter. Each owner has at most one
// main quest per quarter and any number of side quests.
type Quest struct {
	// ID uniquely identifies the quest.
	ID string `json:"id"`

	// OwnerID is the identity-provider id of the user who created the quest.
	OwnerID string `json:"user_id"`

	// Title is the human-readable goal.
	Title string `json:"title"`

	// IsMain distinguishes the primary quest of a quarter from side quests.
	IsMain bool `json:"is_main"`

	// Quarter is the period label, e.g. "Q3 2025".
	Quarter string `json:"quarter"`

	// Completed is true iff Progress is 100.
	Completed bool `json:"completed"`

	// Progress is the derived completion percentage (0-100).
	Progress int `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuarterOf returns the quarter label for t, formatted as "Q{n} {yyyy}".
func QuarterOf(t time.Time) string {
	return fmt.Sprintf("Q%d %d", QuarterNumber(t), t.Year())
}

// QuarterNumber returns the 1-based quarter index of t.
func QuarterNumber(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// WithProgress returns a copy of q with Progress and Completed derived from
// the given task set.
func (q Quest) WithProgress(tasks []Task) Quest {
	q.Progress = ComputeProgress(tasks)
	q.Completed = q.Progress == 100
	return q
}
