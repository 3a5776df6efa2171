package paper

// Package paper is the simulated exchange gateway behind --test-mode.
// Orders rest in memory and fill when the mark price crosses them. Fill
// delivery mimics real exchanges: at-least-once, so a configurable
// fraction of fills is delivered twice.

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

const fillBuffer = 256

type restingOrder struct {
	id       string
	side     domain.Side
	price    decimal.Decimal
	quantity decimal.Decimal
}

// Gateway implements ports.ExchangeGateway against an in-memory book.
type Gateway struct {
	prec      domain.Precision
	maxOrders int

	// DuplicateEveryN redelivers every Nth fill event a second time.
	// Zero disables duplication.
	DuplicateEveryN int

	mu        sync.Mutex
	mark      decimal.Decimal
	orders    map[string]*restingOrder
	fills     chan ports.FillEvent
	fillCount int
	closed    bool
}

// New creates a paper gateway with the given instrument precision and
// starting mark price.
func New(prec domain.Precision, startPrice decimal.Decimal, maxOrders int) *Gateway {
	return &Gateway{
		prec:      prec,
		maxOrders: maxOrders,
		mark:      startPrice,
		orders:    make(map[string]*restingOrder),
		fills:     make(chan ports.FillEvent, fillBuffer),
	}
}

func (g *Gateway) PlaceOrder(_ context.Context, req ports.PlaceOrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return "", &ports.FatalError{Reason: "gateway closed"}
	}
	if len(g.orders) >= g.maxOrders {
		return "", ports.ErrOrderLimit
	}
	if !req.Price.IsPositive() || req.Quantity.LessThan(g.prec.MinQty) {
		return "", ports.ErrPrecisionRejected
	}

	id := uuid.New().String()
	g.orders[id] = &restingOrder{
		id:       id,
		side:     req.Side,
		price:    req.Price,
		quantity: req.Quantity,
	}
	return id, nil
}

func (g *Gateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.orders[orderID]; !ok {
		return ports.ErrOrderNotFound
	}
	delete(g.orders, orderID)
	return nil
}

func (g *Gateway) Fills() <-chan ports.FillEvent { return g.fills }

func (g *Gateway) GetPrecision(_ context.Context, _ string) (domain.Precision, error) {
	return g.prec, nil
}

func (g *Gateway) GetMarkPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mark, nil
}

func (g *Gateway) MaxOpenOrders() int { return g.maxOrders }

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.fills)
	}
	return nil
}

// OpenOrders returns the number of resting orders.
func (g *Gateway) OpenOrders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

// SetMarkPrice moves the simulated market. Resting orders crossed by the
// new price fill at their limit price and their events are emitted
// before the call returns.
func (g *Gateway) SetMarkPrice(price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.mark = price
	if g.closed {
		return
	}

	for id, o := range g.orders {
		crossed := (o.side == domain.SideBuy && price.LessThanOrEqual(o.price)) ||
			(o.side == domain.SideSell && price.GreaterThanOrEqual(o.price))
		if !crossed {
			continue
		}

		delete(g.orders, id)
		g.fillCount++
		ev := ports.FillEvent{
			OrderID:  o.id,
			Price:    o.price,
			Quantity: o.quantity,
			EventID:  uuid.New().String(),
		}
		g.emit(ev)
		if g.DuplicateEveryN > 0 && g.fillCount%g.DuplicateEveryN == 0 {
			g.emit(ev)
		}
	}
}

// emit drops the event when the buffer is full rather than blocking the
// price path; the engine's periodic status makes lost simulated fills
// visible as a level count mismatch.
func (g *Gateway) emit(ev ports.FillEvent) {
	select {
	case g.fills <- ev:
	default:
	}
}
