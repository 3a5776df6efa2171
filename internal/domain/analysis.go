package domain

import "github.com/shopspring/decimal"

// analysis.go holds the pre-trade strategy analysis for the analyze-only mode.
// All estimates are indicative: they assume a ranging market and a fill
// rate that real markets will not honor.

var daysPerYear = decimal.NewFromInt(365)

// ProfitEstimate is the indicative earning potential of a grid config.
type ProfitEstimate struct {
	ProfitPerGrid decimal.Decimal // spacing × per-order amount
	DailyProfit   decimal.Decimal
	AnnualReturn  decimal.Decimal // percent, on used capital
	UsedCapital   decimal.Decimal
}

// StrategyAnalysis is the full analyze-only report for a config at an
// assumed center price.
type StrategyAnalysis struct {
	Center     decimal.Decimal
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
	RangePct   decimal.Decimal // total coverage as percent of center
	BuyLevels  []decimal.Decimal
	SellLevels []decimal.Decimal
	Estimate   ProfitEstimate
	Warnings   []string
}

// EstimateProfit computes the indicative per-grid and daily profit for a
// config. expectedFillRate is the assumed fraction of levels filling per
// day (0.5 is the conventional ranging-market guess).
func EstimateProfit(cfg GridConfig, expectedFillRate decimal.Decimal) ProfitEstimate {
	gridCount := decimal.NewFromInt(int64(cfg.PairCount()))

	perGrid := cfg.Spacing.Mul(cfg.PerOrderAmount)
	daily := perGrid.Mul(gridCount).Mul(expectedFillRate)
	used := cfg.PerOrderAmount.Mul(gridCount)

	var annual decimal.Decimal
	if used.IsPositive() {
		annual = daily.Mul(daysPerYear).Div(used).Mul(hundred)
	}

	return ProfitEstimate{
		ProfitPerGrid: perGrid,
		DailyProfit:   daily,
		AnnualReturn:  annual,
		UsedCapital:   used,
	}
}

// Analyze builds the strategy report for a config around an assumed
// center price, without touching any exchange.
func Analyze(cfg GridConfig, center decimal.Decimal, prec Precision) StrategyAnalysis {
	ladder := NewLadder(center, cfg.Spacing, prec)

	a := StrategyAnalysis{
		Center:   center,
		MinPrice: center,
		MaxPrice: center,
	}

	for i := 1; i <= cfg.LowerCount; i++ {
		price := ladder.LevelPrice(-i)
		if !price.IsPositive() {
			continue
		}
		a.BuyLevels = append(a.BuyLevels, price)
		if price.LessThan(a.MinPrice) {
			a.MinPrice = price
		}
	}
	for i := 1; i <= cfg.UpperCount; i++ {
		price := ladder.LevelPrice(i)
		a.SellLevels = append(a.SellLevels, price)
		if price.GreaterThan(a.MaxPrice) {
			a.MaxPrice = price
		}
	}

	if center.IsPositive() {
		a.RangePct = a.MaxPrice.Sub(a.MinPrice).Div(center).Mul(hundred)
	}

	a.Estimate = EstimateProfit(cfg, decimal.NewFromFloat(0.5))
	a.Warnings, _ = cfg.Validate(center, 0, prec)
	return a
}
