package main

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/domain"
)

// runAnalysis prints the grid layout and profit estimate for the configured
// strategy without touching any exchange. Prices are laid out around the
// assumed center with full precision, so tick and lot effects do not show
// up here.
func runAnalysis(grid domain.GridConfig, assumePrice float64, console *notify.Console) {
	center := decimal.NewFromFloat(assumePrice)
	analysis := domain.Analyze(grid, center, domain.Precision{})
	console.PrintAnalysis(grid, analysis)
}
