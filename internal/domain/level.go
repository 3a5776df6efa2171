package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a grid order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the flip side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// LevelStatus represents the lifecycle of a grid level's order.
type LevelStatus string

const (
	StatusPending   LevelStatus = "PENDING"
	StatusOpen      LevelStatus = "OPEN"
	StatusFilled    LevelStatus = "FILLED"
	StatusCancelled LevelStatus = "CANCELLED"
)

// FillRecord is one half of a round trip waiting for its opposite fill.
type FillRecord struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	FilledAt time.Time
}

// GridLevel is one rung of the ladder. The index uniquely identifies the
// rung: negative below center, positive above, magnitude = distance in
// spacing units. Price is derived from the ladder center and never
// mutated independently.
type GridLevel struct {
	Index    int
	Price    decimal.Decimal
	Side     Side
	Quantity decimal.Decimal
	Status   LevelStatus
	OrderID  string // present iff Status == StatusOpen

	// PendingFill holds the last fill at this level that has not yet been
	// matched against an opposite-side fill. Cleared when a round trip
	// completes and on regrid.
	PendingFill *FillRecord
}

// IsActive reports whether the level has a resting exchange order.
func (l *GridLevel) IsActive() bool {
	return l.Status == StatusOpen
}
