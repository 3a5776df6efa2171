package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Configuration error kinds. All are fatal at startup and abort a regrid.
var (
	ErrNegativePriceConfig = fmt.Errorf("grid config would produce non-positive prices")
	ErrOrderLimitExceeded  = fmt.Errorf("grid config exceeds exchange order limit")
	ErrPrecisionTooSmall   = fmt.Errorf("per-order amount too small for instrument precision")
)

var (
	hundred = decimal.NewFromInt(100)

	// coverageWarnAt: buy-side coverage beyond this fraction is legal but
	// leaves very little room before prices hit zero.
	coverageWarnAt = decimal.NewFromFloat(0.8)

	spacingAdviseMin  = decimal.NewFromFloat(0.001) // 0.1%
	spacingAdviseMax  = decimal.NewFromFloat(0.10)  // 10%
	perOrderAdviseMin = decimal.NewFromInt(10)
	coverageAdviseMin = decimal.NewFromFloat(0.10)
	coverageAdviseMax = decimal.NewFromFloat(0.50)
	utilisationFloor  = decimal.NewFromFloat(0.10)

	maxPerSideCount = 50
)

// GridConfig is the strategy configuration for one ladder. Immutable for
// the session; only derived ladder state changes on a regrid.
type GridConfig struct {
	Ticker                string
	Spacing               decimal.Decimal // fraction of center per level, > 0
	UpperCount            int
	LowerCount            int
	PerOrderAmount        decimal.Decimal // quote-currency notional per order
	InitialBalance        decimal.Decimal
	StopPrice             decimal.Decimal // zero or negative = unset
	PausePrice            decimal.Decimal // zero or negative = unset
	BreakthroughThreshold decimal.Decimal // fraction of one spacing unit
	DynamicEnabled        bool
}

// StopSet reports whether a stop price is configured.
func (c GridConfig) StopSet() bool { return c.StopPrice.IsPositive() }

// PauseSet reports whether a pause price is configured.
func (c GridConfig) PauseSet() bool { return c.PausePrice.IsPositive() }

// PairCount is the number of grid level pairs (upper + lower).
func (c GridConfig) PairCount() int { return c.UpperCount + c.LowerCount }

// Validate gates startup and every regrid. It is evaluated against the
// prospective center because level prices, and hence the extreme-level
// quantity check, change with the center. Returns non-fatal advisory
// warnings alongside any fatal error.
func (c GridConfig) Validate(center decimal.Decimal, maxOrders int, prec Precision) ([]string, error) {
	var warnings []string

	if !c.Spacing.IsPositive() {
		return nil, fmt.Errorf("%w: spacing must be positive, got %s", ErrNegativePriceConfig, c.Spacing)
	}
	if c.UpperCount <= 0 || c.LowerCount <= 0 {
		return nil, fmt.Errorf("%w: grid counts must be positive (upper=%d lower=%d)",
			ErrNegativePriceConfig, c.UpperCount, c.LowerCount)
	}
	if !c.PerOrderAmount.IsPositive() {
		return nil, fmt.Errorf("%w: per-order amount must be positive, got %s",
			ErrPrecisionTooSmall, c.PerOrderAmount)
	}

	// 1. Buy-side coverage: spacing × lowerCount ≥ 1 forces a price ≤ 0.
	coverage := c.Spacing.Mul(decimal.NewFromInt(int64(c.LowerCount)))
	if coverage.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("%w: spacing × lower levels = %s%% >= 100%%",
			ErrNegativePriceConfig, coverage.Mul(hundred).StringFixed(1))
	}
	if coverage.GreaterThanOrEqual(coverageWarnAt) {
		warnings = append(warnings, fmt.Sprintf(
			"buy-side coverage %s%% is close to 100%%, lowest levels sit near zero",
			coverage.Mul(hundred).StringFixed(1)))
	}

	// 2. Order budget: each level pair can carry up to two resting orders.
	if maxOrders > 0 && 2*c.PairCount() > maxOrders {
		return nil, fmt.Errorf("%w: %d level pairs need up to %d orders, exchange allows %d",
			ErrOrderLimitExceeded, c.PairCount(), 2*c.PairCount(), maxOrders)
	}

	// 3. Farthest buy level must still clear the minimum quantity.
	if center.IsPositive() && prec.MinQty.IsPositive() {
		farPrice := prec.RoundToTick(center.Mul(one.Sub(coverage)))
		if farPrice.IsPositive() {
			qty := prec.FloorToLot(c.PerOrderAmount.Div(farPrice))
			if qty.LessThan(prec.MinQty) {
				suggested := prec.MinQty.Mul(farPrice).Ceil()
				return nil, fmt.Errorf(
					"%w: level %d at %s yields quantity %s < minimum %s; raise per-order amount to at least %s",
					ErrPrecisionTooSmall, -c.LowerCount, farPrice, qty, prec.MinQty, suggested)
			}
		}
	}

	warnings = append(warnings, c.advisories(coverage)...)
	return warnings, nil
}

// advisories are soft recommendations carried over from long-running grid
// deployments. None of them block startup.
func (c GridConfig) advisories(buyCoverage decimal.Decimal) []string {
	var w []string

	if c.Spacing.LessThan(spacingAdviseMin) {
		w = append(w, fmt.Sprintf("spacing %s%% is very small and may cause excessive churn",
			c.Spacing.Mul(hundred).StringFixed(2)))
	} else if c.Spacing.GreaterThan(spacingAdviseMax) {
		w = append(w, fmt.Sprintf("spacing %s%% is very large and may rarely fill",
			c.Spacing.Mul(hundred).StringFixed(1)))
	}

	if c.UpperCount > maxPerSideCount || c.LowerCount > maxPerSideCount {
		w = append(w, fmt.Sprintf("more than %d levels per side ties up capital with little benefit", maxPerSideCount))
	}

	if c.PerOrderAmount.LessThan(perOrderAdviseMin) {
		w = append(w, fmt.Sprintf("per-order amount %s may not cover trading fees", c.PerOrderAmount))
	}

	required := c.PerOrderAmount.Mul(decimal.NewFromInt(int64(c.PairCount())))
	if c.InitialBalance.IsPositive() {
		if required.GreaterThan(c.InitialBalance) {
			w = append(w, fmt.Sprintf("full ladder needs %s but initial balance is %s",
				required.StringFixed(2), c.InitialBalance.StringFixed(2)))
		} else if required.LessThan(c.InitialBalance.Mul(utilisationFloor)) {
			w = append(w, fmt.Sprintf("ladder uses only %s%% of the initial balance",
				required.Div(c.InitialBalance).Mul(hundred).StringFixed(1)))
		}
	}

	totalCoverage := buyCoverage.Add(c.Spacing.Mul(decimal.NewFromInt(int64(c.UpperCount))))
	if totalCoverage.LessThan(coverageAdviseMin) {
		w = append(w, fmt.Sprintf("price coverage %s%% is narrow; volatile markets will break out quickly",
			totalCoverage.Mul(hundred).StringFixed(1)))
	} else if totalCoverage.GreaterThan(coverageAdviseMax) {
		w = append(w, fmt.Sprintf("price coverage %s%% is wide; capital may sit idle for long periods",
			totalCoverage.Mul(hundred).StringFixed(1)))
	}

	return w
}
