package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is a processed fill event as persisted and reported.
type Fill struct {
	EventID    string
	OrderID    string
	LevelIndex int
	Side       Side
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	FilledAt   time.Time
}

// StatusSnapshot is the read-only view of a running ladder, consumed by
// logging and persistence.
type StatusSnapshot struct {
	Ticker      string
	Center      decimal.Decimal
	MarkPrice   decimal.Decimal
	LowerBound  decimal.Decimal
	UpperBound  decimal.Decimal
	ActiveBuys  int
	ActiveSells int
	TotalProfit decimal.Decimal
	Trades      int
	Regrids     int
	Paused      bool
	TakenAt     time.Time
}

// ActiveOrders is the total resting order count.
func (s StatusSnapshot) ActiveOrders() int {
	return s.ActiveBuys + s.ActiveSells
}

// SessionSummary is the persisted end-of-session record.
type SessionSummary struct {
	SessionID   string
	Ticker      string
	Exchange    string
	StartedAt   time.Time
	EndedAt     time.Time
	TotalProfit decimal.Decimal
	Trades      int
	Regrids     int
	HaltReason  string
}
