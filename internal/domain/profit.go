package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfitLedger accumulates realized profit from matched buy/sell pairs.
// Mutated only inside the engine's single consumer; snapshot elsewhere.
type ProfitLedger struct {
	TotalProfit decimal.Decimal
	Trades      int
}

// RoundTrip is a completed buy/sell pair at one ladder index.
type RoundTrip struct {
	LevelIndex int
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
	Quantity   decimal.Decimal
	Profit     decimal.Decimal
	ClosedAt   time.Time
}

// Match computes the realized profit for a completed round trip and
// records it. The matched quantity is the smaller of the two fills: the
// excess of the larger fill carries no realized profit.
func (p *ProfitLedger) Match(index int, buy, sell FillRecord) RoundTrip {
	qty := decimal.Min(buy.Quantity, sell.Quantity)
	profit := sell.Price.Sub(buy.Price).Mul(qty)

	p.TotalProfit = p.TotalProfit.Add(profit)
	p.Trades++

	return RoundTrip{
		LevelIndex: index,
		BuyPrice:   buy.Price,
		SellPrice:  sell.Price,
		Quantity:   qty,
		Profit:     profit,
		ClosedAt:   time.Now().UTC(),
	}
}
