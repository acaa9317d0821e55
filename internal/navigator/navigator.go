// Package navigator tracks which asset an engineer is verifying: a cursor
// over the unverified subset with a direct-selection override for revisiting
// already-verified items.
package navigator

import (
	"context"
	"math"
	"time"

	"costseg/internal/model"
)

// VerifyFunc confirms one asset. It must return only once the upstream
// state commit is durable so the navigator can advance safely.
type VerifyFunc func(ctx context.Context, assetID string) error

// Navigator holds cursor state only; the asset list is supplied by the
// caller on each call and is never cached, so storage stays authoritative.
type Navigator struct {
	cursor   int
	selected string // direct selection id, empty when inactive
	verify   VerifyFunc

	// settleDelay is a fallback for verify callbacks that cannot signal
	// durability; zero means advance immediately after verify returns.
	settleDelay time.Duration
}

func New(verify VerifyFunc) *Navigator {
	return &Navigator{verify: verify}
}

// WithSettleDelay sets the legacy fixed wait applied after verification
// before advancing. Prefer verify callbacks that block until committed.
func (n *Navigator) WithSettleDelay(d time.Duration) *Navigator {
	n.settleDelay = d
	return n
}

// Current resolves the asset under review. A live direct selection wins even
// if the asset has been verified since it was selected. Otherwise the cursor
// indexes the unverified subset (clamped to 0 when out of range), falling
// back to the first asset overall when everything is verified.
func (n *Navigator) Current(assets []model.Asset) *model.Asset {
	if n.selected != "" {
		if a := findAsset(assets, n.selected); a != nil {
			return a
		}
	}
	unverified := unverifiedSubset(assets)
	if len(unverified) > 0 {
		i := n.cursor
		if i < 0 || i >= len(unverified) {
			i = 0
		}
		return findAsset(assets, unverified[i])
	}
	if len(assets) > 0 {
		return &assets[0]
	}
	return nil
}

// GoToNextUnverified clears any direct selection and advances cyclically
// through the unverified subset. When the previously current asset has left
// the subset the cursor resets to the top; with nothing left to verify the
// call is a no-op.
func (n *Navigator) GoToNextUnverified(assets []model.Asset) {
	prevID := ""
	if prev := n.Current(assets); prev != nil {
		prevID = prev.ID
	}
	n.advanceFrom(prevID, assets)
}

// advanceFrom moves the cursor to the unverified asset after prevID. A
// prevID outside the subset (just verified, deleted, or empty) resets the
// cursor to the top.
func (n *Navigator) advanceFrom(prevID string, assets []model.Asset) {
	n.selected = ""

	unverified := unverifiedSubset(assets)
	if len(unverified) == 0 {
		return
	}
	at := indexOf(unverified, prevID)
	if at < 0 {
		n.cursor = 0
		return
	}
	n.cursor = (at + 1) % len(unverified)
}

// GoToAsset jumps to id: into the cursor when the asset is still unverified,
// or as a direct selection when it exists but has been verified already.
// Unknown ids change nothing.
func (n *Navigator) GoToAsset(assets []model.Asset, id string) {
	unverified := unverifiedSubset(assets)
	if at := indexOf(unverified, id); at >= 0 {
		n.cursor = at
		n.selected = ""
		return
	}
	if findAsset(assets, id) != nil {
		n.selected = id
	}
}

// ConfirmAndContinue verifies the current asset and advances to the next
// unverified one. assetsAfter must return the asset list as it stands after
// the verification committed.
func (n *Navigator) ConfirmAndContinue(ctx context.Context, assets []model.Asset, assetsAfter func() []model.Asset) error {
	current := n.Current(assets)
	if current == nil {
		return nil
	}
	if err := n.verify(ctx, current.ID); err != nil {
		return err
	}
	n.selected = ""
	if n.settleDelay > 0 {
		select {
		case <-time.After(n.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// Advance relative to the asset just verified: it has left the subset,
	// so the cursor lands on whichever unverified asset follows it.
	n.advanceFrom(current.ID, assetsAfter())
	return nil
}

// ProgressPercentage is the share of verified assets, rounded; 0 for an
// empty list.
func ProgressPercentage(assets []model.Asset) int {
	if len(assets) == 0 {
		return 0
	}
	verified := 0
	for _, a := range assets {
		if a.Verified {
			verified++
		}
	}
	return int(math.Round(float64(verified) / float64(len(assets)) * 100))
}

func unverifiedSubset(assets []model.Asset) []string {
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		if !a.Verified {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func findAsset(assets []model.Asset, id string) *model.Asset {
	for i := range assets {
		if assets[i].ID == id {
			return &assets[i]
		}
	}
	return nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
