package workflow

import (
	"testing"

	"costseg/internal/model"
)

func TestIsValidTransition(t *testing.T) {
	t.Run("adjacent pairs are valid", func(t *testing.T) {
		for i := 0; i+1 < len(model.StepOrder); i++ {
			from, to := model.StepOrder[i], model.StepOrder[i+1]
			if !IsValidTransition(from, to) {
				t.Errorf("expected %s -> %s to be valid", from, to)
			}
		}
	})

	t.Run("non-adjacent pairs are invalid", func(t *testing.T) {
		if IsValidTransition(model.StepAnalyzingRooms, model.StepCompleted) {
			t.Error("expected analyzing_rooms -> completed to be invalid")
		}
		if IsValidTransition(model.StepReviewingRooms, model.StepAnalyzingRooms) {
			t.Error("expected backward transition to be invalid")
		}
		if IsValidTransition(model.StepUploadingDocuments, model.StepUploadingDocuments) {
			t.Error("expected self transition to be invalid")
		}
	})

	t.Run("terminal step has no successor", func(t *testing.T) {
		for _, to := range model.StepOrder {
			if IsValidTransition(model.StepCompleted, to) {
				t.Errorf("expected completed -> %s to be invalid", to)
			}
		}
	})

	t.Run("unknown statuses are invalid", func(t *testing.T) {
		if IsValidTransition("archived", model.StepCompleted) {
			t.Error("expected unknown from-status to be invalid")
		}
		if IsValidTransition(model.StepAnalyzingRooms, "archived") {
			t.Error("expected unknown to-status to be invalid")
		}
	})
}

func TestNextPreviousStatus(t *testing.T) {
	if next, ok := NextStatus(model.StepAnalyzingRooms); !ok || next != model.StepResourceExtraction {
		t.Errorf("NextStatus(analyzing_rooms) = %q, %v", next, ok)
	}
	if _, ok := NextStatus(model.StepCompleted); ok {
		t.Error("expected no successor for completed")
	}
	if prev, ok := PreviousStatus(model.StepResourceExtraction); !ok || prev != model.StepAnalyzingRooms {
		t.Errorf("PreviousStatus(resource_extraction) = %q, %v", prev, ok)
	}
	if _, ok := PreviousStatus(model.StepUploadingDocuments); ok {
		t.Error("expected no predecessor for uploading_documents")
	}
	if _, ok := NextStatus("archived"); ok {
		t.Error("expected no successor for unknown status")
	}
}

func TestCanNavigateTo(t *testing.T) {
	visited := []string{model.StepUploadingDocuments, model.StepAnalyzingRooms, model.StepResourceExtraction}

	t.Run("visited steps are revisitable", func(t *testing.T) {
		if !CanNavigateTo(model.StepAnalyzingRooms, visited, model.StepResourceExtraction) {
			t.Error("expected visited step to be navigable")
		}
	})

	t.Run("immediate successor of workflow status is reachable", func(t *testing.T) {
		if !CanNavigateTo(model.StepReviewingRooms, visited, model.StepResourceExtraction) {
			t.Error("expected next step to be navigable")
		}
	})

	t.Run("unvisited later steps are blocked", func(t *testing.T) {
		if CanNavigateTo(model.StepEngineeringTakeoff, visited, model.StepResourceExtraction) {
			t.Error("expected skip-ahead to be blocked")
		}
		if CanNavigateTo(model.StepCompleted, visited, model.StepResourceExtraction) {
			t.Error("expected jump to terminal step to be blocked")
		}
	})

	t.Run("unknown targets are blocked", func(t *testing.T) {
		if CanNavigateTo("archived", visited, model.StepResourceExtraction) {
			t.Error("expected unknown target to be blocked")
		}
	})
}
