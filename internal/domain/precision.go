package domain

import "github.com/shopspring/decimal"

// Precision is the per-instrument rounding and minimum-order contract
// imposed by the exchange.
type Precision struct {
	TickSize decimal.Decimal // price increment
	LotSize  decimal.Decimal // quantity increment
	MinQty   decimal.Decimal // minimum order quantity
}

// RoundToTick rounds a price to the nearest tick. A zero tick size
// leaves the price untouched.
func (p Precision) RoundToTick(price decimal.Decimal) decimal.Decimal {
	if p.TickSize.IsZero() {
		return price
	}
	return price.Div(p.TickSize).Round(0).Mul(p.TickSize)
}

// FloorToLot rounds a quantity down to the lot size. Quantities always
// round down: rounding up could exceed the notional the order budgets for.
func (p Precision) FloorToLot(qty decimal.Decimal) decimal.Decimal {
	if p.LotSize.IsZero() {
		return qty
	}
	return qty.Div(p.LotSize).Floor().Mul(p.LotSize)
}
