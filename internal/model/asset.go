package model

import (
	"github.com/shopspring/decimal"
)

// Depreciation category constants
const (
	CategoryFiveYear       = "5-year"
	CategoryFifteenYear    = "15-year"
	CategoryTwentySevenFive = "27.5-year"
)

// ValidCategory reports whether category is one of the recognized
// tax-depreciation classifications.
func ValidCategory(category string) bool {
	return category == CategoryFiveYear ||
		category == CategoryFifteenYear ||
		category == CategoryTwentySevenFive
}

// Asset is a depreciable item extracted from a study. It lives inside the
// Study document, not in its own table. PercentageOfTotal is intentionally
// absent: percentages are derived from EstimatedValue against the study
// total at read time (see service.CalculatePercentages).
type Asset struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Category           string          `json:"category"` // 5-year, 15-year, 27.5-year
	EstimatedValue     decimal.Decimal `json:"estimated_value"`
	DepreciationPeriod int             `json:"depreciation_period"` // years
	Verified           bool            `json:"verified"`
	RoomID             string          `json:"room_id,omitempty"`
}
