package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Console implements ports.Notifier on stdout.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a console notifier. table selects the full table
// output over the compact one-line status.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyStatus prints the ladder status in the configured mode.
func (c *Console) NotifyStatus(_ context.Context, s domain.StatusSnapshot) error {
	if c.table {
		c.printTable(s)
		return nil
	}

	paused := ""
	if s.Paused {
		paused = " PAUSED"
	}
	fmt.Fprintf(c.out, "[%s] %s mark=%s center=%s orders=%d (B:%d S:%d) profit=%s trades=%d regrids=%d%s\n",
		s.TakenAt.Format("15:04:05"), s.Ticker, s.MarkPrice, s.Center,
		s.ActiveOrders(), s.ActiveBuys, s.ActiveSells,
		s.TotalProfit.StringFixed(4), s.Trades, s.Regrids, paused)
	return nil
}

// NotifyHalt prints the termination banner.
func (c *Console) NotifyHalt(_ context.Context, reason string) error {
	fmt.Fprintf(c.out, "[%s] session halted: %s\n", time.Now().Format("15:04:05"), reason)
	return nil
}

func (c *Console) printTable(s domain.StatusSnapshot) {
	fmt.Fprintf(c.out, "\n[%s] %s grid status\n", s.TakenAt.Format("15:04:05"), s.Ticker)

	table := tablewriter.NewWriter(c.out)
	table.Header("Mark", "Center", "Lower", "Upper", "Buys", "Sells", "Profit", "Trades", "Regrids")
	table.Append(
		s.MarkPrice.String(),
		s.Center.String(),
		s.LowerBound.String(),
		s.UpperBound.String(),
		fmt.Sprintf("%d", s.ActiveBuys),
		fmt.Sprintf("%d", s.ActiveSells),
		s.TotalProfit.StringFixed(4),
		fmt.Sprintf("%d", s.Trades),
		fmt.Sprintf("%d", s.Regrids),
	)
	table.Render()
}

// PrintAnalysis renders the analyze-only report: grid layout, price
// coverage, and the indicative profit estimate.
func (c *Console) PrintAnalysis(cfg domain.GridConfig, a domain.StrategyAnalysis) {
	fmt.Fprintf(c.out, "\nGrid strategy analysis for %s\n", cfg.Ticker)
	fmt.Fprintf(c.out, "center %s, range %s – %s (%s%% total coverage)\n\n",
		a.Center, a.MinPrice, a.MaxPrice, a.RangePct.StringFixed(1))

	table := tablewriter.NewWriter(c.out)
	table.Header("Level", "Side", "Price")
	for i := len(a.SellLevels) - 1; i >= 0; i-- {
		table.Append(fmt.Sprintf("+%d", i+1), "SELL", a.SellLevels[i].String())
	}
	for i := 0; i < len(a.BuyLevels); i++ {
		table.Append(fmt.Sprintf("-%d", i+1), "BUY", a.BuyLevels[i].String())
	}
	table.Render()

	est := a.Estimate
	fmt.Fprintf(c.out, "\nper-grid profit:   %s\n", est.ProfitPerGrid.StringFixed(4))
	fmt.Fprintf(c.out, "est. daily profit: %s (assumes 50%% daily fill rate)\n", est.DailyProfit.StringFixed(4))
	fmt.Fprintf(c.out, "est. annual return: %s%%\n", est.AnnualReturn.StringFixed(2))
	fmt.Fprintf(c.out, "capital in use:    %s\n", est.UsedCapital.StringFixed(2))

	if required := cfg.PerOrderAmount.Mul(decimal.NewFromInt(int64(cfg.PairCount()))); cfg.InitialBalance.IsPositive() {
		fmt.Fprintf(c.out, "initial balance:   %s (ladder requires %s)\n",
			cfg.InitialBalance.StringFixed(2), required.StringFixed(2))
	}

	if len(a.Warnings) > 0 {
		fmt.Fprintln(c.out, "\nadvisories:")
		for _, w := range a.Warnings {
			fmt.Fprintf(c.out, "  - %s\n", w)
		}
	}
	fmt.Fprintln(c.out)
}
