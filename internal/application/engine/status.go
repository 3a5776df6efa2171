package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Status returns a read-only snapshot of the ladder. Safe to call from
// outside the run loop.
func (e *Engine) Status() domain.StatusSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := domain.StatusSnapshot{
		Ticker:      e.cfg.Grid.Ticker,
		MarkPrice:   e.lastMark,
		TotalProfit: e.ledger.TotalProfit,
		Trades:      e.ledger.Trades,
		Regrids:     e.regrids,
		Paused:      e.paused,
		TakenAt:     time.Now().UTC(),
	}
	if e.ladder != nil {
		s.Center = e.ladder.Center
		s.ActiveBuys, s.ActiveSells = e.ladder.ActiveCounts()
		lowBuy, highSell, buyOK, sellOK := e.ladder.Bounds()
		if buyOK {
			s.LowerBound = lowBuy
		}
		if sellOK {
			s.UpperBound = highSell
		}
	}
	return s
}

// reportStatus logs the periodic status line and forwards the snapshot
// to the notifier and the session record.
func (e *Engine) reportStatus(ctx context.Context) {
	s := e.Status()

	slog.Info("grid status",
		"mark", s.MarkPrice,
		"center", s.Center,
		"active", s.ActiveOrders(),
		"buys", s.ActiveBuys,
		"sells", s.ActiveSells,
		"profit", s.TotalProfit,
		"trades", s.Trades,
		"regrids", s.Regrids,
		"paused", s.Paused,
	)

	if e.notifier != nil {
		if err := e.notifier.NotifyStatus(ctx, s); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	e.saveSession(ctx, "")
}
