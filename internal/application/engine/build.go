package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

// buildLadder computes and places a fresh ladder around center. Levels
// that fail price or precision checks are skipped; levels whose
// placement fails after retries are marked Cancelled and the build
// continues. Only a build that places nothing at all is an error.
func (e *Engine) buildLadder(ctx context.Context, center decimal.Decimal) error {
	gen := 1
	if e.ladder != nil {
		gen = e.ladder.Generation + 1
	}

	ladder := domain.NewLadder(center, e.cfg.Grid.Spacing, e.prec)
	ladder.Generation = gen

	skipped := ladder.Compute(e.cfg.Grid.UpperCount, e.cfg.Grid.LowerCount, e.cfg.Grid.PerOrderAmount)
	for _, s := range skipped {
		slog.Warn("grid level skipped",
			"level", s.Index, "price", s.Price, "quantity", s.Quantity, "reason", s.Reason)
	}

	e.mu.Lock()
	e.ladder = ladder
	e.byOrder = make(map[string]*domain.GridLevel, len(ladder.Levels))
	e.mu.Unlock()

	placed := 0
	for _, index := range levelOrder(e.cfg.Grid.UpperCount, e.cfg.Grid.LowerCount) {
		level, ok := ladder.Levels[index]
		if !ok {
			continue
		}
		if err := e.placeLevel(ctx, level); err != nil {
			var fatal *ports.FatalError
			if errors.As(err, &fatal) {
				return err
			}
			continue
		}
		placed++
	}

	if placed == 0 {
		return fmt.Errorf("buildLadder: no grid orders placed (%d levels, %d skipped)",
			len(ladder.Levels), len(skipped))
	}

	lowBuy, highSell, buyOK, sellOK := ladder.Bounds()
	if !buyOK {
		lowBuy = center
	}
	if !sellOK {
		highSell = center
	}
	slog.Info("grid ladder built",
		"generation", gen,
		"center", center,
		"placed", placed,
		"levels", len(ladder.Levels),
		"skipped", len(skipped),
		"range_low", lowBuy,
		"range_high", highSell,
	)
	return nil
}

// placeLevel submits the order for a Pending level and transitions it to
// Open, or to Cancelled when placement fails for good.
func (e *Engine) placeLevel(ctx context.Context, level *domain.GridLevel) error {
	if len(e.byOrder) >= e.maxActive {
		e.mu.Lock()
		level.Status = domain.StatusCancelled
		e.mu.Unlock()
		slog.Warn("order budget exhausted, level not placed",
			"level", level.Index, "active", len(e.byOrder), "max", e.maxActive)
		return fmt.Errorf("placeLevel: active order budget %d exhausted", e.maxActive)
	}

	orderID, err := e.placeWithRetry(ctx, ports.PlaceOrderRequest{
		Ticker:   e.cfg.Grid.Ticker,
		Side:     level.Side,
		Price:    level.Price,
		Quantity: level.Quantity,
	})
	if err != nil {
		e.mu.Lock()
		level.Status = domain.StatusCancelled
		level.OrderID = ""
		e.mu.Unlock()
		slog.Error("grid order placement failed",
			"level", level.Index, "side", level.Side,
			"price", level.Price, "quantity", level.Quantity, "err", err)
		return err
	}

	e.mu.Lock()
	level.Status = domain.StatusOpen
	level.OrderID = orderID
	e.byOrder[orderID] = level
	e.mu.Unlock()

	slog.Info("grid order placed",
		"level", level.Index, "side", level.Side,
		"price", level.Price, "quantity", level.Quantity, "order_id", orderID)
	return nil
}

// levelOrder yields buy levels nearest-first, then sell levels
// nearest-first, so the rungs closest to the market rest first.
func levelOrder(upperCount, lowerCount int) []int {
	order := make([]int, 0, upperCount+lowerCount)
	for i := 1; i <= lowerCount; i++ {
		order = append(order, -i)
	}
	for i := 1; i <= upperCount; i++ {
		order = append(order, i)
	}
	return order
}
