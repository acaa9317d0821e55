package navigator

import (
	"context"
	"errors"
	"testing"

	"costseg/internal/model"
)

func threeUnverified() []model.Asset {
	return []model.Asset{
		{ID: "A", Name: "Carpet"},
		{ID: "B", Name: "Cabinets"},
		{ID: "C", Name: "Fencing"},
	}
}

func TestCurrentDefaultsToFirstUnverified(t *testing.T) {
	n := New(nil)
	assets := []model.Asset{
		{ID: "A", Verified: true},
		{ID: "B"},
		{ID: "C"},
	}
	if got := n.Current(assets); got == nil || got.ID != "B" {
		t.Errorf("Current = %+v, want B", got)
	}
}

func TestCurrentFallsBackToFirstAssetWhenAllVerified(t *testing.T) {
	n := New(nil)
	assets := []model.Asset{
		{ID: "A", Verified: true},
		{ID: "B", Verified: true},
	}
	if got := n.Current(assets); got == nil || got.ID != "A" {
		t.Errorf("Current = %+v, want A", got)
	}
	if got := n.Current(nil); got != nil {
		t.Errorf("Current on empty list = %+v, want nil", got)
	}
}

func TestGoToNextUnverifiedCycles(t *testing.T) {
	n := New(nil)
	assets := threeUnverified()

	n.GoToAsset(assets, "C")
	if got := n.Current(assets); got.ID != "C" {
		t.Fatalf("cursor setup failed, at %s", got.ID)
	}
	n.GoToNextUnverified(assets)
	if got := n.Current(assets); got.ID != "A" {
		t.Errorf("expected wrap to A, got %s", got.ID)
	}
	n.GoToNextUnverified(assets)
	if got := n.Current(assets); got.ID != "B" {
		t.Errorf("expected advance to B, got %s", got.ID)
	}
}

func TestGoToNextUnverifiedEmptySubsetIsNoOp(t *testing.T) {
	n := New(nil)
	assets := []model.Asset{{ID: "A", Verified: true}}
	n.GoToAsset(assets, "A") // direct selection on a verified asset
	n.GoToNextUnverified(assets)
	// Selection is cleared, cursor untouched, and no panic on empty subset.
	if got := n.Current(assets); got == nil || got.ID != "A" {
		t.Errorf("Current = %+v", got)
	}
	n.GoToNextUnverified(nil)
}

func TestGoToNextUnverifiedResetsWhenCurrentLeftSubset(t *testing.T) {
	n := New(nil)
	assets := threeUnverified()
	n.GoToAsset(assets, "B")

	// B gets verified underneath the cursor.
	assets[1].Verified = true
	n.GoToNextUnverified(assets)
	if got := n.Current(assets); got.ID != "A" {
		t.Errorf("expected reset to first unverified, got %s", got.ID)
	}
}

func TestGoToAssetDirectSelectionOfVerified(t *testing.T) {
	n := New(nil)
	assets := []model.Asset{
		{ID: "A", Verified: true},
		{ID: "B"},
	}
	n.GoToAsset(assets, "A")
	if got := n.Current(assets); got == nil || got.ID != "A" {
		t.Errorf("direct selection ignored, got %+v", got)
	}
	// Unknown id changes nothing.
	n.GoToAsset(assets, "nope")
	if got := n.Current(assets); got == nil || got.ID != "A" {
		t.Errorf("unknown id moved selection to %+v", got)
	}
}

func TestConfirmAndContinue(t *testing.T) {
	t.Run("verifies current and advances", func(t *testing.T) {
		assets := threeUnverified()
		var verified string
		n := New(func(ctx context.Context, id string) error {
			verified = id
			return nil
		})

		err := n.ConfirmAndContinue(context.Background(), assets, func() []model.Asset {
			after := threeUnverified()
			after[0].Verified = true
			return after
		})
		if err != nil {
			t.Fatalf("ConfirmAndContinue: %v", err)
		}
		if verified != "A" {
			t.Errorf("verified %q, want A", verified)
		}
		after := threeUnverified()
		after[0].Verified = true
		if got := n.Current(after); got.ID != "B" {
			t.Errorf("expected advance to B, got %s", got.ID)
		}
	})

	t.Run("verify failure does not advance", func(t *testing.T) {
		assets := threeUnverified()
		n := New(func(ctx context.Context, id string) error {
			return errors.New("write failed")
		})
		if err := n.ConfirmAndContinue(context.Background(), assets, func() []model.Asset { return assets }); err == nil {
			t.Fatal("expected error")
		}
		if got := n.Current(assets); got.ID != "A" {
			t.Errorf("cursor moved on failure, at %s", got.ID)
		}
	})

	t.Run("empty list is a no-op", func(t *testing.T) {
		n := New(func(ctx context.Context, id string) error {
			t.Error("verify must not be called")
			return nil
		})
		if err := n.ConfirmAndContinue(context.Background(), nil, func() []model.Asset { return nil }); err != nil {
			t.Fatalf("ConfirmAndContinue: %v", err)
		}
	})
}

func TestProgressPercentage(t *testing.T) {
	if got := ProgressPercentage(nil); got != 0 {
		t.Errorf("empty list progress = %d, want 0", got)
	}
	assets := []model.Asset{
		{ID: "A", Verified: true},
		{ID: "B", Verified: true},
		{ID: "C"},
	}
	if got := ProgressPercentage(assets); got != 67 {
		t.Errorf("progress = %d, want 67", got)
	}
	assets[2].Verified = true
	if got := ProgressPercentage(assets); got != 100 {
		t.Errorf("progress = %d, want 100", got)
	}
}
