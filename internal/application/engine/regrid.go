package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

var one = decimal.NewFromInt(1)

// checkPrice runs on every price tick: stop and pause gates first, then
// the regrid evaluation. A failed mark-price fetch skips the tick.
func (e *Engine) checkPrice(ctx context.Context) error {
	mark, err := e.gateway.GetMarkPrice(ctx, e.cfg.Grid.Ticker)
	if err != nil {
		slog.Warn("mark price fetch failed", "err", err)
		return nil
	}

	e.mu.Lock()
	e.lastMark = mark
	e.mu.Unlock()

	if e.cfg.Grid.StopSet() && mark.LessThanOrEqual(e.cfg.Grid.StopPrice) {
		slog.Warn("stop price breached, halting session",
			"mark", mark, "stop", e.cfg.Grid.StopPrice)
		e.halt(fmt.Sprintf("stop price breached (mark %s <= stop %s)", mark, e.cfg.Grid.StopPrice))
		return nil
	}

	if e.cfg.Grid.PauseSet() {
		// paused is read by Status outside the run loop, so the
		// transition happens under the snapshot lock.
		below := mark.LessThanOrEqual(e.cfg.Grid.PausePrice)
		e.mu.Lock()
		changed := below != e.paused
		e.paused = below
		e.mu.Unlock()

		if changed && below {
			slog.Warn("pause price breached, suspending new orders",
				"mark", mark, "pause", e.cfg.Grid.PausePrice)
		} else if changed {
			slog.Info("price recovered above pause level, resuming", "mark", mark)
		}
	}

	return e.maybeRegrid(ctx)
}

// maybeRegrid recenters the ladder when the mark price has broken past a
// ladder bound by more than the breakthrough threshold. It evaluates the
// mark cached by the last price tick, so a breakout between ticks is
// acted on at most one price-check interval late. With dynamic mode
// disabled the ladder is static for the session: levels beyond the
// price simply stop filling.
func (e *Engine) maybeRegrid(ctx context.Context) error {
	if !e.cfg.Grid.DynamicEnabled || e.paused || e.ladder == nil {
		return nil
	}
	mark := e.lastMark
	if !mark.IsPositive() {
		return nil
	}

	lowBuy, highSell, buyOK, sellOK := e.ladder.Bounds()
	if !buyOK {
		lowBuy = e.ladder.LevelPrice(-e.cfg.Grid.LowerCount)
	}
	if !sellOK {
		highSell = e.ladder.LevelPrice(e.cfg.Grid.UpperCount)
	}

	// Threshold in price terms: breakthrough fraction of one spacing unit.
	threshold := e.ladder.Center.Mul(e.cfg.Grid.Spacing).Mul(e.cfg.Grid.BreakthroughThreshold)

	switch {
	case mark.GreaterThan(highSell.Add(threshold)):
		slog.Info("upper bound breakthrough",
			"mark", mark, "upper_bound", highSell, "threshold", threshold)
		return e.regrid(ctx, 1)
	case mark.LessThan(lowBuy.Sub(threshold)):
		slog.Info("lower bound breakthrough",
			"mark", mark, "lower_bound", lowBuy, "threshold", threshold)
		return e.regrid(ctx, -1)
	}
	return nil
}

// regrid recenters the ladder one spacing unit toward the breakthrough:
// cancel everything, validate against the new center, rebuild. Fill
// events arriving during the rebuild stay queued on the gateway channel
// and, if they reference cancelled orders, die on the stale-fill check.
// The ledger and trade history survive; each level's pending
// opposite-fill record does not, so a round trip interrupted by a
// regrid is not counted.
func (e *Engine) regrid(ctx context.Context, direction int) error {
	step := e.cfg.Grid.Spacing
	if direction < 0 {
		step = step.Neg()
	}
	newCenter := e.prec.RoundToTick(e.ladder.Center.Mul(one.Add(step)))

	warnings, err := e.cfg.Grid.Validate(newCenter, e.orderLimit(), e.prec)
	if err != nil {
		e.halt(fmt.Sprintf("regrid rejected by config validation: %v", err))
		return nil
	}
	for _, w := range warnings {
		slog.Warn("config advisory on regrid", "warning", w)
	}

	oldCenter := e.ladder.Center

	e.mu.Lock()
	cancelled := e.cancelAllLocked(ctx)
	for _, level := range e.ladder.Levels {
		level.Status = domain.StatusCancelled
		level.PendingFill = nil
	}
	e.regrids++
	e.mu.Unlock()

	slog.Info("regridding ladder",
		"old_center", oldCenter,
		"new_center", newCenter,
		"cancelled", cancelled,
		"regrids", e.regrids,
	)

	if err := e.buildLadder(ctx, newCenter); err != nil {
		return fmt.Errorf("regrid: %w", err)
	}
	return nil
}
