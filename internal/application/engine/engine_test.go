package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeGateway is a scriptable in-memory gateway. placeErr, when set,
// decides per-request placement failures.
type fakeGateway struct {
	prec      domain.Precision
	mark      decimal.Decimal
	maxOrders int
	fills     chan ports.FillEvent
	placeErr  func(ports.PlaceOrderRequest) error

	nextID    int
	placed    []ports.PlaceOrderRequest
	cancelled []string
	closed    bool
}

func newFakeGateway(mark string) *fakeGateway {
	return &fakeGateway{
		prec: domain.Precision{
			TickSize: dec("0.01"),
			LotSize:  dec("0.0001"),
			MinQty:   dec("0.001"),
		},
		mark:  dec(mark),
		fills: make(chan ports.FillEvent, 16),
	}
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req ports.PlaceOrderRequest) (string, error) {
	if g.placeErr != nil {
		if err := g.placeErr(req); err != nil {
			return "", err
		}
	}
	g.nextID++
	g.placed = append(g.placed, req)
	return fmt.Sprintf("ord-%d", g.nextID), nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, orderID string) error {
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) Fills() <-chan ports.FillEvent { return g.fills }

func (g *fakeGateway) GetPrecision(context.Context, string) (domain.Precision, error) {
	return g.prec, nil
}

func (g *fakeGateway) GetMarkPrice(context.Context, string) (decimal.Decimal, error) {
	return g.mark, nil
}

func (g *fakeGateway) MaxOpenOrders() int { return g.maxOrders }

func (g *fakeGateway) Close() error {
	g.closed = true
	return nil
}

func testGrid() domain.GridConfig {
	return domain.GridConfig{
		Ticker:                "ETH",
		Spacing:               dec("0.01"),
		UpperCount:            3,
		LowerCount:            3,
		PerOrderAmount:        dec("50"),
		InitialBalance:        dec("1000"),
		BreakthroughThreshold: dec("0.5"),
		DynamicEnabled:        true,
	}
}

func testEngine(g *fakeGateway, grid domain.GridConfig) *Engine {
	return New(Config{Grid: grid, Exchange: "paper", SessionID: "test-session"}, g, nil, nil)
}

// orderAt finds the resting order id for a ladder index.
func orderAt(e *Engine, index int) (string, *domain.GridLevel) {
	for id, level := range e.byOrder {
		if level.Index == index {
			return id, level
		}
	}
	return "", nil
}

func TestStart_BuildsInitialLadder(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())

	require.NoError(t, e.start(context.Background()))

	require.Len(t, e.byOrder, 6)
	assert.Len(t, g.placed, 6)
	assert.True(t, e.ladder.Center.Equal(dec("2000")))
	assert.Equal(t, 1, e.ladder.Generation)

	// buys rest first, nearest rung first
	assert.Equal(t, domain.SideBuy, g.placed[0].Side)
	assert.True(t, g.placed[0].Price.Equal(dec("1980")))
	assert.Equal(t, domain.SideSell, g.placed[3].Side)
	assert.True(t, g.placed[3].Price.Equal(dec("2020")))

	for _, level := range e.ladder.Levels {
		assert.Equal(t, domain.StatusOpen, level.Status)
		assert.NotEmpty(t, level.OrderID)
	}
}

func TestStart_ConfigRejected(t *testing.T) {
	grid := testGrid()
	grid.Spacing = dec("0.25")
	grid.LowerCount = 4 // 100% buy-side coverage

	e := testEngine(newFakeGateway("2000"), grid)
	err := e.start(context.Background())
	require.ErrorIs(t, err, domain.ErrNegativePriceConfig)
}

func TestStart_RespectsExchangeOrderLimit(t *testing.T) {
	g := newFakeGateway("2000")
	g.maxOrders = 100
	e := testEngine(g, testGrid())

	require.NoError(t, e.start(context.Background()))
	// 2 × 6 pairs is below the exchange cap, so the pair budget wins
	assert.Equal(t, 12, e.maxActive)

	g2 := newFakeGateway("2000")
	g2.maxOrders = 12
	e2 := testEngine(g2, testGrid())
	require.NoError(t, e2.start(context.Background()))
	assert.Equal(t, 12, e2.maxActive)
}

func TestStart_UserOrderCap(t *testing.T) {
	// a cap below 2 × pairs cannot hold a full ladder and is rejected
	g := newFakeGateway("2000")
	e := New(Config{Grid: testGrid(), Exchange: "paper", SessionID: "s", MaxOrders: 8}, g, nil, nil)
	err := e.start(context.Background())
	require.ErrorIs(t, err, domain.ErrOrderLimitExceeded)

	// a cap with headroom passes validation and bounds the budget
	g2 := newFakeGateway("2000")
	e2 := New(Config{Grid: testGrid(), Exchange: "paper", SessionID: "s", MaxOrders: 20}, g2, nil, nil)
	require.NoError(t, e2.start(context.Background()))
	assert.Equal(t, 12, e2.maxActive)
}

func TestHandleFill_FlipsToOppositeSideAtSamePrice(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	id, level := orderAt(e, -1)
	require.NotNil(t, level)
	buyQty := level.Quantity

	err := e.handleFill(context.Background(), ports.FillEvent{
		OrderID: id, Price: level.Price, Quantity: buyQty, EventID: "ev-1",
	})
	require.NoError(t, err)

	// the rung now rests a sell for the bought quantity at the same price
	assert.Equal(t, domain.StatusOpen, level.Status)
	assert.Equal(t, domain.SideSell, level.Side)
	assert.True(t, level.Price.Equal(dec("1980")))
	assert.True(t, level.Quantity.Equal(buyQty))

	require.NotNil(t, level.PendingFill)
	assert.Equal(t, domain.SideBuy, level.PendingFill.Side)
	assert.Equal(t, 0, e.ledger.Trades)
	assert.Len(t, e.byOrder, 6)
}

func TestHandleFill_RoundTripAtSamePriceRealizesZero(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	id, level := orderAt(e, -1)
	require.NoError(t, e.handleFill(context.Background(), ports.FillEvent{
		OrderID: id, Price: level.Price, Quantity: level.Quantity, EventID: "ev-1",
	}))

	// fill the flip sell: buy and sell pair off at the same price
	id2, _ := orderAt(e, -1)
	require.NotEqual(t, id, id2)
	require.NoError(t, e.handleFill(context.Background(), ports.FillEvent{
		OrderID: id2, Price: level.Price, Quantity: level.Quantity, EventID: "ev-2",
	}))

	assert.Equal(t, 1, e.ledger.Trades)
	assert.True(t, e.ledger.TotalProfit.IsZero())
	assert.Nil(t, level.PendingFill)

	// rung flipped back to a buy with the quantity recomputed from the
	// per-order notional
	assert.Equal(t, domain.SideBuy, level.Side)
	assert.Equal(t, domain.StatusOpen, level.Status)
	wantQty := e.prec.FloorToLot(dec("50").Div(level.Price))
	assert.True(t, level.Quantity.Equal(wantQty))
}

func TestHandleFill_DuplicateEventIgnored(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	id, level := orderAt(e, 1)
	ev := ports.FillEvent{OrderID: id, Price: level.Price, Quantity: level.Quantity, EventID: "ev-1"}
	require.NoError(t, e.handleFill(context.Background(), ev))

	placedBefore := len(g.placed)
	tradesBefore := e.ledger.Trades

	// at-least-once delivery: the replay must be a strict no-op
	require.NoError(t, e.handleFill(context.Background(), ev))
	assert.Len(t, g.placed, placedBefore)
	assert.Equal(t, tradesBefore, e.ledger.Trades)
}

func TestHandleFill_UnknownOrderIgnored(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	placedBefore := len(g.placed)
	require.NoError(t, e.handleFill(context.Background(), ports.FillEvent{
		OrderID: "never-seen", Price: dec("1980"), Quantity: dec("0.02"), EventID: "ev-x",
	}))
	assert.Len(t, g.placed, placedBefore)
}

func TestHandleFill_FlipSuppressedWhilePaused(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))
	e.paused = true

	id, level := orderAt(e, -1)
	require.NoError(t, e.handleFill(context.Background(), ports.FillEvent{
		OrderID: id, Price: level.Price, Quantity: level.Quantity, EventID: "ev-1",
	}))

	assert.Equal(t, domain.StatusCancelled, level.Status)
	assert.Len(t, g.placed, 6, "no flip order while paused")
	// the fill itself is still recorded for a later match
	assert.NotNil(t, level.PendingFill)
}

func TestCheckPrice_StopPriceHalts(t *testing.T) {
	grid := testGrid()
	grid.StopPrice = dec("1900")

	g := newFakeGateway("2000")
	e := testEngine(g, grid)
	require.NoError(t, e.start(context.Background()))

	g.mark = dec("1890")
	require.NoError(t, e.checkPrice(context.Background()))

	assert.True(t, e.halted)
	assert.Contains(t, e.haltReason, "stop price breached")
}

func TestCheckPrice_PauseAndResume(t *testing.T) {
	grid := testGrid()
	grid.PausePrice = dec("1950")

	g := newFakeGateway("2000")
	e := testEngine(g, grid)
	require.NoError(t, e.start(context.Background()))

	g.mark = dec("1940")
	require.NoError(t, e.checkPrice(context.Background()))
	assert.True(t, e.paused)
	assert.False(t, e.halted)
	// resting orders stay up while paused
	assert.Len(t, e.byOrder, 6)

	g.mark = dec("1960")
	require.NoError(t, e.checkPrice(context.Background()))
	assert.False(t, e.paused)
}

func TestStatus_ConcurrentWithPauseTransitions(t *testing.T) {
	grid := testGrid()
	grid.PausePrice = dec("1950")

	g := newFakeGateway("2000")
	e := testEngine(g, grid)
	require.NoError(t, e.start(context.Background()))

	// snapshot reads race against pause/resume flips unless the
	// transition happens under the snapshot lock
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			e.Status()
		}
	}()

	for i := 0; i < 250; i++ {
		g.mark = dec("1940")
		require.NoError(t, e.checkPrice(context.Background()))
		g.mark = dec("1960")
		require.NoError(t, e.checkPrice(context.Background()))
	}
	<-done

	assert.False(t, e.Status().Paused)
	assert.Equal(t, 0, e.regrids)
}

func TestMaybeRegrid_UpperBreakthrough(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	// highest sell 2060, threshold 2000 × 0.01 × 0.5 = 10: trigger above 2070
	g.mark = dec("2070")
	require.NoError(t, e.checkPrice(context.Background()))
	assert.True(t, e.ladder.Center.Equal(dec("2000")), "at the threshold is not past it")
	assert.Equal(t, 0, e.regrids)

	g.mark = dec("2070.01")
	require.NoError(t, e.checkPrice(context.Background()))

	assert.Equal(t, 1, e.regrids)
	assert.True(t, e.ladder.Center.Equal(dec("2020")), "one spacing step up, got %s", e.ladder.Center)
	assert.Equal(t, 2, e.ladder.Generation)
	assert.Len(t, g.cancelled, 6)
	assert.Len(t, e.byOrder, 6, "fresh ladder fully placed")
}

func TestMaybeRegrid_LowerBreakthrough(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	// lowest buy 1940, threshold 10: trigger below 1930
	g.mark = dec("1929.99")
	require.NoError(t, e.checkPrice(context.Background()))

	assert.Equal(t, 1, e.regrids)
	assert.True(t, e.ladder.Center.Equal(dec("1980")))
}

func TestMaybeRegrid_DynamicDisabled(t *testing.T) {
	grid := testGrid()
	grid.DynamicEnabled = false

	g := newFakeGateway("2000")
	e := testEngine(g, grid)
	require.NoError(t, e.start(context.Background()))

	g.mark = dec("2500")
	require.NoError(t, e.checkPrice(context.Background()))
	assert.Equal(t, 0, e.regrids)
	assert.True(t, e.ladder.Center.Equal(dec("2000")))
}

func TestMaybeRegrid_SuppressedWhilePaused(t *testing.T) {
	grid := testGrid()
	grid.PausePrice = dec("1950")

	g := newFakeGateway("2000")
	e := testEngine(g, grid)
	require.NoError(t, e.start(context.Background()))

	// far below the lower bound and below the pause level
	g.mark = dec("1800")
	require.NoError(t, e.checkPrice(context.Background()))
	assert.True(t, e.paused)
	assert.Equal(t, 0, e.regrids)
}

func TestRegrid_ClearsPendingFills(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	id, level := orderAt(e, -1)
	require.NoError(t, e.handleFill(context.Background(), ports.FillEvent{
		OrderID: id, Price: level.Price, Quantity: level.Quantity, EventID: "ev-1",
	}))
	require.NotNil(t, level.PendingFill)

	g.mark = dec("2075")
	require.NoError(t, e.checkPrice(context.Background()))

	// the interrupted round trip is abandoned, not counted
	assert.Nil(t, level.PendingFill)
	assert.Equal(t, 0, e.ledger.Trades)
}

func TestRegrid_ValidationFailureHalts(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	// exchange lowers its order cap mid-session: the next regrid cannot
	// legally rebuild and the session halts instead
	g.maxOrders = 4
	g.mark = dec("2075")
	require.NoError(t, e.checkPrice(context.Background()))

	assert.True(t, e.halted)
	assert.Contains(t, e.haltReason, "regrid rejected")
	assert.Equal(t, 0, e.regrids)
}

func TestBuildLadder_PlacementFailureDegrades(t *testing.T) {
	g := newFakeGateway("2000")
	badPrice := dec("1960")
	g.placeErr = func(req ports.PlaceOrderRequest) error {
		if req.Price.Equal(badPrice) {
			return ports.ErrInsufficientBalance
		}
		return nil
	}
	e := testEngine(g, testGrid())

	require.NoError(t, e.start(context.Background()))

	assert.Len(t, e.byOrder, 5)
	assert.Equal(t, domain.StatusCancelled, e.ladder.Levels[-2].Status)
}

func TestBuildLadder_NothingPlacedIsError(t *testing.T) {
	g := newFakeGateway("2000")
	g.placeErr = func(ports.PlaceOrderRequest) error {
		return ports.ErrInsufficientBalance
	}
	e := testEngine(g, testGrid())

	err := e.start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no grid orders placed")
}

func TestBuildLadder_FatalErrorPropagates(t *testing.T) {
	g := newFakeGateway("2000")
	g.placeErr = func(ports.PlaceOrderRequest) error {
		return &ports.FatalError{Reason: "account suspended"}
	}
	e := testEngine(g, testGrid())

	err := e.start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account suspended")
}

func TestPlaceLevel_BudgetExhausted(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	e.maxActive = len(e.byOrder) // budget full
	level := &domain.GridLevel{
		Index: -4, Price: dec("1920"), Side: domain.SideBuy,
		Quantity: dec("0.02"), Status: domain.StatusPending,
	}
	err := e.placeLevel(context.Background(), level)
	require.Error(t, err)
	assert.Equal(t, domain.StatusCancelled, level.Status)
	assert.Len(t, g.placed, 6)
}

func TestStatus_Snapshot(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())
	require.NoError(t, e.start(context.Background()))

	s := e.Status()
	assert.Equal(t, "ETH", s.Ticker)
	assert.Equal(t, 3, s.ActiveBuys)
	assert.Equal(t, 3, s.ActiveSells)
	assert.Equal(t, 6, s.ActiveOrders())
	assert.True(t, s.LowerBound.Equal(dec("1940")))
	assert.True(t, s.UpperBound.Equal(dec("2060")))
	assert.False(t, s.Paused)
	assert.WithinDuration(t, time.Now(), s.TakenAt, time.Minute)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, backoffDelay(0))
	assert.Equal(t, time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 10*time.Second, backoffDelay(10), "capped")
	assert.Equal(t, 500*time.Millisecond, backoffDelay(-1))
	assert.Equal(t, 10*time.Second, backoffDelay(30))
}

func TestPlaceWithRetry_PermanentErrorNoRetry(t *testing.T) {
	g := newFakeGateway("2000")
	calls := 0
	g.placeErr = func(ports.PlaceOrderRequest) error {
		calls++
		return ports.ErrInsufficientBalance
	}
	e := testEngine(g, testGrid())
	e.prec = g.prec

	_, err := e.placeWithRetry(context.Background(), ports.PlaceOrderRequest{
		Ticker: "ETH", Side: domain.SideBuy, Price: dec("1980"), Quantity: dec("0.02"),
	})
	require.ErrorIs(t, err, ports.ErrInsufficientBalance)
	assert.Equal(t, 1, calls)
}

func TestRun_ContextCancelShutsDown(t *testing.T) {
	g := newFakeGateway("2000")
	e := testEngine(g, testGrid())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on context cancellation")
	}
	assert.True(t, g.closed)
	assert.Len(t, g.cancelled, 6)
}
