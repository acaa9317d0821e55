package model

import (
	"github.com/shopspring/decimal"
)

// Takeoff is one line item produced by the extraction pipeline. The pipeline
// writes an immutable copy collection once (Study.TakeoffCopies); the UI
// edits a duplicated active collection (Study.Takeoffs) that autosaves.
type Takeoff struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`

	// Optional commercial fields
	Unit      string           `json:"unit,omitempty"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	TotalCost *decimal.Decimal `json:"total_cost,omitempty"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty"`
	CostCode  string           `json:"cost_code,omitempty"`
	Notes     string           `json:"notes,omitempty"`
	AssetID   string           `json:"asset_id,omitempty"`
}
