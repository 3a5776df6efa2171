package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

const (
	defaultPriceCheckInterval = 10 * time.Second
	defaultStatusInterval     = 60 * time.Second

	maxPlaceAttempts = 3
	baseRetryDelay   = 500 * time.Millisecond
	maxRetryDelay    = 10 * time.Second

	cancelTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Config holds everything the engine needs beyond the grid parameters.
type Config struct {
	Grid      domain.GridConfig
	Exchange  string
	SessionID string

	// MaxOrders caps resting orders below the exchange limit when set.
	MaxOrders int

	PriceCheckInterval time.Duration
	StatusInterval     time.Duration
}

// Engine runs one grid ladder on one (exchange, instrument) pair. All
// ladder state is owned by the single goroutine inside Run: fill events
// and price ticks are consumed strictly one at a time, which is what
// makes the duplicate-fill check and the one-order-per-level invariant
// sound without per-level locking. Engines for different instruments
// share nothing and run fully in parallel.
type Engine struct {
	cfg      Config
	gateway  ports.ExchangeGateway
	store    ports.TradeStorage // nil disables persistence
	notifier ports.Notifier     // nil disables reporting

	prec      domain.Precision
	ladder    *domain.Ladder
	byOrder   map[string]*domain.GridLevel
	ledger    domain.ProfitLedger
	maxActive int

	regrids    int
	paused     bool
	halted     bool
	haltReason string
	lastMark   decimal.Decimal
	startedAt  time.Time

	mu sync.RWMutex // guards snapshot reads from outside the run loop
}

// New creates an engine. store and notifier may be nil.
func New(cfg Config, gateway ports.ExchangeGateway, store ports.TradeStorage, notifier ports.Notifier) *Engine {
	if cfg.PriceCheckInterval <= 0 {
		cfg.PriceCheckInterval = defaultPriceCheckInterval
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	return &Engine{
		cfg:      cfg,
		gateway:  gateway,
		store:    store,
		notifier: notifier,
		byOrder:  make(map[string]*domain.GridLevel),
	}
}

// Run validates the configuration, builds the initial ladder, and
// processes the fill stream until the context is cancelled, the stop
// price is breached, or the gateway fails fatally. It blocks for the
// session's lifetime.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.start(ctx); err != nil {
		return err
	}

	priceTick := time.NewTicker(e.cfg.PriceCheckInterval)
	defer priceTick.Stop()
	statusTick := time.NewTicker(e.cfg.StatusInterval)
	defer statusTick.Stop()

	fills := e.gateway.Fills()

	for {
		select {
		case <-ctx.Done():
			e.shutdown("session stopped")
			return nil

		case ev, ok := <-fills:
			if !ok {
				e.shutdown("fill stream closed")
				return fmt.Errorf("engine.Run: fill stream closed by gateway")
			}
			if err := e.handleFill(ctx, ev); err != nil {
				e.shutdown(err.Error())
				return fmt.Errorf("engine.Run: %w", err)
			}

		case <-priceTick.C:
			if err := e.checkPrice(ctx); err != nil {
				e.shutdown(err.Error())
				return fmt.Errorf("engine.Run: %w", err)
			}

		case <-statusTick.C:
			e.reportStatus(ctx)
		}

		if e.halted {
			e.shutdown(e.haltReason)
			return nil
		}
	}
}

// start fetches precision and mark price, validates the config, and
// places the initial ladder.
func (e *Engine) start(ctx context.Context) error {
	prec, err := e.gateway.GetPrecision(ctx, e.cfg.Grid.Ticker)
	if err != nil {
		return fmt.Errorf("engine.start: get precision: %w", err)
	}
	e.prec = prec

	mark, err := e.gateway.GetMarkPrice(ctx, e.cfg.Grid.Ticker)
	if err != nil {
		return fmt.Errorf("engine.start: get mark price: %w", err)
	}
	center := prec.RoundToTick(mark)

	warnings, err := e.cfg.Grid.Validate(center, e.orderLimit(), prec)
	if err != nil {
		return fmt.Errorf("engine.start: config rejected: %w", err)
	}
	for _, w := range warnings {
		slog.Warn("config advisory", "ticker", e.cfg.Grid.Ticker, "warning", w)
	}

	e.maxActive = 2 * e.cfg.Grid.PairCount()
	if limit := e.orderLimit(); limit > 0 && limit < e.maxActive {
		e.maxActive = limit
	}

	e.startedAt = time.Now().UTC()
	e.lastMark = mark

	slog.Info("starting grid session",
		"ticker", e.cfg.Grid.Ticker,
		"exchange", e.cfg.Exchange,
		"center", center,
		"spacing", e.cfg.Grid.Spacing,
		"upper", e.cfg.Grid.UpperCount,
		"lower", e.cfg.Grid.LowerCount,
		"per_order", e.cfg.Grid.PerOrderAmount,
		"dynamic", e.cfg.Grid.DynamicEnabled,
	)

	if err := e.buildLadder(ctx, center); err != nil {
		return fmt.Errorf("engine.start: %w", err)
	}

	e.saveSession(ctx, "")
	return nil
}

// orderLimit is the effective resting-order cap: the exchange limit
// tightened by the configured cap when one is set.
func (e *Engine) orderLimit() int {
	limit := e.gateway.MaxOpenOrders()
	if e.cfg.MaxOrders > 0 && (limit == 0 || e.cfg.MaxOrders < limit) {
		limit = e.cfg.MaxOrders
	}
	return limit
}

// halt marks the session terminal; the run loop performs the shutdown.
func (e *Engine) halt(reason string) {
	e.halted = true
	e.haltReason = reason
}

// shutdown performs the scoped best-effort cancel-all and releases the
// gateway. The deadline bounds the whole sweep: unacknowledged cancels
// do not hold up session exit.
func (e *Engine) shutdown(reason string) {
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	e.mu.Lock()
	cancelled := e.cancelAllLocked(sctx)
	e.mu.Unlock()

	slog.Info("grid session shutdown",
		"reason", reason,
		"cancelled", cancelled,
		"total_profit", e.ledger.TotalProfit,
		"trades", e.ledger.Trades,
		"regrids", e.regrids,
	)

	e.saveSession(sctx, reason)
	if e.notifier != nil {
		if err := e.notifier.NotifyHalt(sctx, reason); err != nil {
			slog.Warn("notifier error on halt", "err", err)
		}
	}
	if err := e.gateway.Close(); err != nil {
		slog.Warn("gateway close error", "err", err)
	}
}

// cancelAllLocked cancels every resting order, best-effort. Each cancel
// gets a bounded timeout; a level whose cancel is not acknowledged is
// marked Cancelled anyway so a rebuild can never deadlock on it.
func (e *Engine) cancelAllLocked(ctx context.Context) int {
	acked := 0
	for orderID, level := range e.byOrder {
		cctx, cancel := context.WithTimeout(ctx, cancelTimeout)
		err := e.gateway.CancelOrder(cctx, orderID)
		cancel()

		switch {
		case err == nil:
			acked++
		default:
			slog.Warn("cancel not acknowledged",
				"order_id", orderID, "level", level.Index, "err", err)
		}

		level.Status = domain.StatusCancelled
		level.OrderID = ""
		delete(e.byOrder, orderID)
	}
	return acked
}

func (e *Engine) saveSession(ctx context.Context, haltReason string) {
	if e.store == nil {
		return
	}
	s := domain.SessionSummary{
		SessionID:   e.cfg.SessionID,
		Ticker:      e.cfg.Grid.Ticker,
		Exchange:    e.cfg.Exchange,
		StartedAt:   e.startedAt,
		EndedAt:     time.Now().UTC(),
		TotalProfit: e.ledger.TotalProfit,
		Trades:      e.ledger.Trades,
		Regrids:     e.regrids,
		HaltReason:  haltReason,
	}
	if err := e.store.SaveSession(ctx, s); err != nil {
		slog.Warn("session persistence failed", "err", err)
	}
}
