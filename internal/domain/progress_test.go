package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func tasksWith(verifiedDone, completedUnverified, open int) []Task {
	var tasks []Task
	for range verifiedDone {
		tasks = append(tasks, Task{Status: StatusCompleted, Verified: true})
	}
	for range completedUnverified {
		tasks = append(tasks, Task{Status: StatusCompleted})
	}
	for range open {
		tasks = append(tasks, Task{Status: StatusInProgress})
	}
	return tasks
}

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		want  int
	}{
		{name: "no tasks", tasks: nil, want: 0},
		{name: "all verified", tasks: tasksWith(3, 0, 0), want: 100},
		{name: "one of three", tasks: tasksWith(1, 0, 2), want: 33},
		{name: "two of three floors", tasks: tasksWith(2, 1, 0), want: 66},
		{name: "completed but unverified does not count", tasks: tasksWith(0, 4, 0), want: 0},
		{name: "verified flag on open task does not count", tasks: []Task{{Status: StatusInProgress, Verified: true}}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeProgress(tt.tasks))
		})
	}
}

func TestQuest_WithProgress(t *testing.T) {
	q := Quest{ID: "q1"}

	done := q.WithProgress(tasksWith(2, 0, 0))
	assert.Equal(t, 100, done.Progress)
	assert.True(t, done.Completed)

	partial := q.WithProgress(tasksWith(1, 1, 0))
	assert.Equal(t, 50, partial.Progress)
	assert.False(t, partial.Completed)

	again := partial.WithProgress(tasksWith(1, 1, 0))
	assert.Equal(t, partial, again, "recomputation is idempotent")
}
