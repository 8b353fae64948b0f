package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a computed monthly total at a point in time.
type Snapshot struct {
	Month      time.Time // First day of the month, midnight in the earnings timezone
	Total      decimal.Decimal
	ComputedAt time.Time
}
