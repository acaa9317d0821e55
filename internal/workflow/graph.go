package workflow

import (
	"costseg/internal/model"
)

// The status graph is a fixed linear order: every step except the terminal
// one has exactly one valid forward target. All functions are pure and
// side-effect free; unknown statuses yield ok=false rather than errors.

// IsValidTransition reports whether to is the single designated successor
// of from in the canonical step order.
func IsValidTransition(from, to string) bool {
	next, ok := NextStatus(from)
	return ok && next == to
}

// NextStatus returns the step immediately after status, with ok=false at the
// terminal step or for unknown statuses.
func NextStatus(status string) (string, bool) {
	i := model.StepIndex(status)
	if i < 0 || i+1 >= len(model.StepOrder) {
		return "", false
	}
	return model.StepOrder[i+1], true
}

// PreviousStatus returns the step immediately before status, with ok=false
// at the first step or for unknown statuses.
func PreviousStatus(status string) (string, bool) {
	i := model.StepIndex(status)
	if i <= 0 {
		return "", false
	}
	return model.StepOrder[i-1], true
}

// CanNavigateTo reports whether the user may move their current step to
// target: any already-visited step is revisitable, and the single step
// directly ahead of the workflow status is reachable.
func CanNavigateTo(target string, visitedSteps []string, workflowStatus string) bool {
	if model.StepIndex(target) < 0 {
		return false
	}
	for _, s := range visitedSteps {
		if s == target {
			return true
		}
	}
	next, ok := NextStatus(workflowStatus)
	return ok && next == target
}
