package main

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/adapters/paper"
	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/application/engine"
	"github.com/alejandrodnm/gridbot/internal/domain"
)

const (
	paperStartPrice = 2000.0
	paperMaxOrders  = 200
	paperTickStep   = 250 * time.Millisecond
)

// runTestMode drives the engine against the in-memory paper exchange with a
// random-walk price feed. No credentials, no network. Ctrl-C stops it.
func runTestMode(ctx context.Context, cfg *config.Config, grid domain.GridConfig, maxOrders int, table bool) error {
	if maxOrders <= 0 {
		maxOrders = paperMaxOrders
	}
	prec := domain.Precision{
		TickSize: decimal.NewFromFloat(0.01),
		LotSize:  decimal.NewFromFloat(0.0001),
		MinQty:   decimal.NewFromFloat(0.0001),
	}
	gateway := paper.New(prec, decimal.NewFromFloat(paperStartPrice), maxOrders)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	slog.Info("test mode: paper exchange",
		"ticker", grid.Ticker,
		"start_price", paperStartPrice,
	)

	go driveRandomWalk(ctx, gateway)

	eng := engine.New(engine.Config{
		Grid:               grid,
		Exchange:           "paper",
		SessionID:          uuid.New().String(),
		PriceCheckInterval: time.Second,
		StatusInterval:     10 * time.Second,
	}, gateway, store, notify.NewConsole(table))

	return eng.Run(ctx)
}

// driveRandomWalk nudges the paper mark price by up to ±0.4% every step.
// Steps this size cross one 1% grid level every few seconds on average,
// which keeps fills flowing without running the walk off the ladder too
// fast.
func driveRandomWalk(ctx context.Context, gateway *paper.Gateway) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	mark := decimal.NewFromFloat(paperStartPrice)

	ticker := time.NewTicker(paperTickStep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step := decimal.NewFromFloat((rng.Float64() - 0.5) * 0.008)
			mark = mark.Mul(decimal.NewFromInt(1).Add(step))
			gateway.SetMarkPrice(mark)
		}
	}
}
