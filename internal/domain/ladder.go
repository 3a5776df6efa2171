package domain

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// Ladder is the ordered set of grid levels built around a center price.
// Levels are keyed by index; exactly one level exists per index within a
// ladder generation. A regrid discards the whole mapping and builds a new
// generation around a new center.
type Ladder struct {
	Center     decimal.Decimal
	Spacing    decimal.Decimal // fraction of center per level, linear
	Precision  Precision
	Generation int
	Levels     map[int]*GridLevel
}

// SkippedLevel records a level that was never created, with the reason.
type SkippedLevel struct {
	Index    int
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Reason   string
}

// NewLadder creates an empty ladder around the given center.
func NewLadder(center, spacing decimal.Decimal, prec Precision) *Ladder {
	return &Ladder{
		Center:    center,
		Spacing:   spacing,
		Precision: prec,
		Levels:    make(map[int]*GridLevel),
	}
}

// LevelPrice computes the tick-rounded price for a level index:
// center × (1 − spacing×|i|) below center, center × (1 + spacing×i) above.
// Spacing is applied linearly, not compounded.
func (l *Ladder) LevelPrice(index int) decimal.Decimal {
	offset := l.Spacing.Mul(decimal.NewFromInt(int64(abs(index))))
	var price decimal.Decimal
	if index < 0 {
		price = l.Center.Mul(one.Sub(offset))
	} else {
		price = l.Center.Mul(one.Add(offset))
	}
	return l.Precision.RoundToTick(price)
}

// Compute populates the ladder with levels for lowerCount buy rungs and
// upperCount sell rungs. Levels whose price would be non-positive or
// whose quantity would fall below the instrument minimum are skipped
// entirely, never created with a clamped value; partial ladders are
// expected near configuration edges. All returned levels are Pending.
func (l *Ladder) Compute(upperCount, lowerCount int, perOrderAmount decimal.Decimal) []SkippedLevel {
	var skipped []SkippedLevel

	add := func(index int, side Side) {
		price := l.LevelPrice(index)
		if !price.IsPositive() {
			skipped = append(skipped, SkippedLevel{Index: index, Price: price, Reason: "non-positive price"})
			return
		}
		qty := l.Precision.FloorToLot(perOrderAmount.Div(price))
		if qty.LessThan(l.Precision.MinQty) {
			skipped = append(skipped, SkippedLevel{Index: index, Price: price, Quantity: qty, Reason: "quantity below minimum"})
			return
		}
		l.Levels[index] = &GridLevel{
			Index:    index,
			Price:    price,
			Side:     side,
			Quantity: qty,
			Status:   StatusPending,
		}
	}

	for i := 1; i <= lowerCount; i++ {
		add(-i, SideBuy)
	}
	for i := 1; i <= upperCount; i++ {
		add(i, SideSell)
	}
	return skipped
}

// Bounds returns the lowest active buy price and highest active sell
// price. ok is false when no level on that side is active.
func (l *Ladder) Bounds() (lowestBuy, highestSell decimal.Decimal, buyOK, sellOK bool) {
	for _, lv := range l.Levels {
		if !lv.IsActive() {
			continue
		}
		switch lv.Side {
		case SideBuy:
			if !buyOK || lv.Price.LessThan(lowestBuy) {
				lowestBuy = lv.Price
				buyOK = true
			}
		case SideSell:
			if !sellOK || lv.Price.GreaterThan(highestSell) {
				highestSell = lv.Price
				sellOK = true
			}
		}
	}
	return
}

// ActiveCounts returns the number of resting buy and sell orders.
func (l *Ladder) ActiveCounts() (buys, sells int) {
	for _, lv := range l.Levels {
		if !lv.IsActive() {
			continue
		}
		if lv.Side == SideBuy {
			buys++
		} else {
			sells++
		}
	}
	return
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
