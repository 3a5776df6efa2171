package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

// handleFill processes one fill event: exactly-once mutation, profit
// matching, and the flip order. Exchanges deliver fills at-least-once;
// a fill whose order id is unknown or whose level is not Open is a
// duplicate or stale notification and is ignored.
func (e *Engine) handleFill(ctx context.Context, ev ports.FillEvent) error {
	e.mu.Lock()
	level, ok := e.byOrder[ev.OrderID]
	if !ok || level.Status != domain.StatusOpen {
		e.mu.Unlock()
		slog.Debug("duplicate or stale fill ignored",
			"order_id", ev.OrderID, "event_id", ev.EventID)
		return nil
	}

	delete(e.byOrder, ev.OrderID)
	level.Status = domain.StatusFilled
	level.OrderID = ""
	filledSide := level.Side
	e.mu.Unlock()

	slog.Info("grid order filled",
		"level", level.Index, "side", filledSide,
		"price", ev.Price, "quantity", ev.Quantity, "event_id", ev.EventID)

	now := time.Now().UTC()
	e.saveFill(ctx, domain.Fill{
		EventID:    ev.EventID,
		OrderID:    ev.OrderID,
		LevelIndex: level.Index,
		Side:       filledSide,
		Price:      ev.Price,
		Quantity:   ev.Quantity,
		FilledAt:   now,
	})

	rec := domain.FillRecord{Side: filledSide, Price: ev.Price, Quantity: ev.Quantity, FilledAt: now}
	e.settle(ctx, level, rec)

	if err := e.flip(ctx, level, rec); err != nil {
		var fatal *ports.FatalError
		if errors.As(err, &fatal) {
			return err
		}
		// Level degraded to Cancelled; the session continues and the
		// next regrid recreates the rung.
	}

	return e.maybeRegrid(ctx)
}

// settle matches this fill against the level's pending opposite fill if
// one exists, realizing profit; otherwise it records this fill for a
// future match. A level only completes a round trip across two market
// regimes: flips rest at the same price, so the pair's prices differ
// only after a regrid has recreated the rung elsewhere.
func (e *Engine) settle(ctx context.Context, level *domain.GridLevel, rec domain.FillRecord) {
	e.mu.Lock()
	pending := level.PendingFill
	if pending == nil || pending.Side == rec.Side {
		// First fill at this rung since creation or last regrid. A
		// same-side pending record means the opposite fill was lost to a
		// failed flip; start the pairing over from this fill.
		level.PendingFill = &rec
		e.mu.Unlock()
		return
	}

	buy, sell := *pending, rec
	if rec.Side == domain.SideBuy {
		buy, sell = rec, *pending
	}
	rt := e.ledger.Match(level.Index, buy, sell)
	level.PendingFill = nil
	e.mu.Unlock()

	slog.Info("round trip completed",
		"level", rt.LevelIndex,
		"buy_price", rt.BuyPrice,
		"sell_price", rt.SellPrice,
		"quantity", rt.Quantity,
		"profit", rt.Profit,
		"total_profit", e.ledger.TotalProfit,
		"trades", e.ledger.Trades,
	)

	if e.store != nil {
		if err := e.store.SaveRoundTrip(ctx, e.cfg.SessionID, rt); err != nil {
			slog.Warn("round trip persistence failed", "err", err)
		}
	}
}

// flip replaces the filled order with an opposite-side order at the same
// price. A sell flip reuses the filled quantity; a buy flip recomputes
// the quantity from the per-order notional so the lot rounding applies
// to the amount actually being spent.
func (e *Engine) flip(ctx context.Context, level *domain.GridLevel, rec domain.FillRecord) error {
	e.mu.Lock()
	if e.paused {
		level.Status = domain.StatusCancelled
		e.mu.Unlock()
		slog.Info("flip suppressed while paused", "level", level.Index)
		return nil
	}
	e.mu.Unlock()

	flipSide := rec.Side.Opposite()
	qty := rec.Quantity
	if flipSide == domain.SideBuy {
		qty = e.prec.FloorToLot(e.cfg.Grid.PerOrderAmount.Div(level.Price))
	}
	if qty.LessThan(e.prec.MinQty) {
		e.mu.Lock()
		level.Status = domain.StatusCancelled
		e.mu.Unlock()
		slog.Warn("flip quantity below minimum, level inert until regrid",
			"level", level.Index, "quantity", qty, "min_qty", e.prec.MinQty)
		return nil
	}

	e.mu.Lock()
	level.Side = flipSide
	level.Quantity = qty
	level.Status = domain.StatusPending
	e.mu.Unlock()

	return e.placeLevel(ctx, level)
}

func (e *Engine) saveFill(ctx context.Context, fill domain.Fill) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveFill(ctx, e.cfg.SessionID, fill); err != nil {
		slog.Warn("fill persistence failed", "err", err)
	}
}
