package domain

import (
	"fmt"
	"strings"
)

// PointTariff maps a quest category to the points awarded for a verified
// task under it.
type PointTariff struct {
	// Main is awarded for tasks under the quarter's main quest.
	Main int `yaml:"main" json:"main" env:"MAIN" validate:"min=0,max=1000"`

	// Side is awarded for tasks under side quests.
	Side int `yaml:"side" json:"side" env:"SIDE" validate:"min=0,max=1000"`
}

// DefaultPointTariff returns the v1 tariff: 5 points for main quests and 2
// for side quests.
func DefaultPointTariff() PointTariff {
	return PointTariff{Main: 5, Side: 2}
}

// Award returns the points for a task under a quest with the given
// category.
func (t PointTariff) Award(isMain bool) int {
	if isMain {
		return t.Main
	}
	return t.Side
}

// RetryPolicy selects how a retry recomputes a task's award.
type RetryPolicy string

// Retry policies.
const (
	// RetryAdditive adds a fixed increment on top of the previous award.
	RetryAdditive RetryPolicy = "additive"

	// RetryRecompute replaces the previous award with the tariff award.
	RetryRecompute RetryPolicy = "recompute"
)

// ParseRetryPolicy converts a config string into a RetryPolicy.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch RetryPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case RetryAdditive:
		return RetryAdditive, nil
	case RetryRecompute:
		return RetryRecompute, nil
	default:
		return "", fmt.Errorf("%w: unknown retry policy %q", ErrBadRequest, s)
	}
}

// RetryAward computes the award applied by a successful retry.
//
// Under RetryAdditive the base is the task's previous award, or the tariff
// award when the task has never been verified, and the increment is added
// on top. Under RetryRecompute the tariff award is returned unchanged.
func RetryAward(policy RetryPolicy, task Task, tariffAward, increment int) int {
	if policy == RetryRecompute {
		return tariffAward
	}
	base := task.PointsAwarded
	if !task.Verified || base == 0 {
		base = tariffAward
	}
	return base + increment
}
