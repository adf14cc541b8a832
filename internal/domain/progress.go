package domain

// ComputeProgress returns floor(100 * verifiedCompleted / max(total, 1)),
// clamped to [0, 100]. A quest with no tasks has zero progress.
func ComputeProgress(tasks []Task) int {
	done := 0
	for _, t := range tasks {
		if t.IsVerifiedComplete() {
			done++
		}
	}
	total := len(tasks)
	if total < 1 {
		total = 1
	}
	p := 100 * done / total
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
