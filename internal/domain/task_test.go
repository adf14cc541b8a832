package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    TaskStatus
		wantErr bool
	}{
		{in: "completed", want: StatusCompleted},
		{in: "  Completed ", want: StatusCompleted},
		{in: "In Progress", want: StatusInProgress},
		{in: "in-progress", want: StatusInProgress},
		{in: "NOT_STARTED", want: StatusNotStarted},
		{in: "pending", want: StatusPending},
		{in: "done", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrBadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyStatus(t *testing.T) {
	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	t.Run("entering completed stamps completed_at and clears verified", func(t *testing.T) {
		task := Task{Status: StatusInProgress, Verified: true}
		got := ApplyStatus(task, StatusCompleted, t0)

		assert.Equal(t, StatusCompleted, got.Status)
		assert.False(t, got.Verified)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, t0, *got.CompletedAt)
	})

	t.Run("completed to completed keeps completed_at but still clears verified", func(t *testing.T) {
		stamp := t0
		task := Task{Status: StatusCompleted, Verified: true, PointsAwarded: 5, CompletedAt: &stamp}
		got := ApplyStatus(task, StatusCompleted, t1)

		assert.False(t, got.Verified)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, t0, *got.CompletedAt, "completed_at must not be overwritten")
		assert.Equal(t, 5, got.PointsAwarded, "points are untouched by status changes")
	})

	t.Run("other statuses leave verified alone", func(t *testing.T) {
		task := Task{Status: StatusCompleted, Verified: true}
		got := ApplyStatus(task, StatusInProgress, t1)

		assert.Equal(t, StatusInProgress, got.Status)
		assert.True(t, got.Verified)
	})

	t.Run("re-completion re-arms verification", func(t *testing.T) {
		task := Task{Status: StatusCompleted, Verified: true}
		task = ApplyStatus(task, StatusInProgress, t0)
		task = ApplyStatus(task, StatusCompleted, t1)

		assert.True(t, task.AwaitingProof())
		assert.Equal(t, t1, *task.CompletedAt)
	})
}

func TestTaskPatch_Apply(t *testing.T) {
	now := time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC)
	title := "Ship v2"
	status := StatusCompleted

	task := Task{Title: "Ship v1", Description: "keep", Status: StatusPending, Verified: true}
	got := TaskPatch{Title: &title, Status: &status}.Apply(task, now)

	assert.Equal(t, "Ship v2", got.Title)
	assert.Equal(t, "keep", got.Description)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.False(t, got.Verified)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestQuarterOf(t *testing.T) {
	tests := []struct {
		month time.Month
		num   int
		want  string
	}{
		{time.January, 1, "Q1 2025"},
		{time.March, 1, "Q1 2025"},
		{time.April, 2, "Q2 2025"},
		{time.September, 3, "Q3 2025"},
		{time.December, 4, "Q4 2025"},
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			at := time.Date(2025, tt.month, 15, 0, 0, 0, 0, time.UTC)
			assert.Equal(t, tt.num, QuarterNumber(at))
			assert.Equal(t, tt.want, QuarterOf(at))
		})
	}
}
