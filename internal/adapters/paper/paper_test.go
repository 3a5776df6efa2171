package paper

import (
	"context"
	"testing"

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

func newTestGateway() *Gateway {
	prec := domain.Precision{
		TickSize: dec("0.01"),
		LotSize:  dec("0.0001"),
		MinQty:   dec("0.001"),
	}
	return New(prec, dec("2000"), 10)
}

func place(t *testing.T, g *Gateway, side domain.Side, price string) string {
	t.Helper()
	id, err := g.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Ticker: "ETH", Side: side, Price: dec(price), Quantity: dec("0.025"),
	})
	require.NoError(t, err)
	return id
}

func drainFills(g *Gateway) []ports.FillEvent {
	var out []ports.FillEvent
	for {
		select {
		case ev := <-g.Fills():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPlaceOrder_RestsUntilCrossed(t *testing.T) {
	g := newTestGateway()
	place(t, g, domain.SideBuy, "1980")

	assert.Equal(t, 1, g.OpenOrders())
	assert.Empty(t, drainFills(g))
}

func TestPlaceOrder_Rejections(t *testing.T) {
	g := newTestGateway()

	_, err := g.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Ticker: "ETH", Side: domain.SideBuy, Price: dec("-1"), Quantity: dec("0.025"),
	})
	assert.ErrorIs(t, err, ports.ErrPrecisionRejected)

	_, err = g.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Ticker: "ETH", Side: domain.SideBuy, Price: dec("1980"), Quantity: dec("0.0001"),
	})
	assert.ErrorIs(t, err, ports.ErrPrecisionRejected)
}

func TestPlaceOrder_OrderLimit(t *testing.T) {
	prec := domain.Precision{TickSize: dec("0.01"), LotSize: dec("0.0001"), MinQty: dec("0.001")}
	g := New(prec, dec("2000"), 2)

	place(t, g, domain.SideBuy, "1980")
	place(t, g, domain.SideBuy, "1960")

	_, err := g.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Ticker: "ETH", Side: domain.SideBuy, Price: dec("1940"), Quantity: dec("0.025"),
	})
	assert.ErrorIs(t, err, ports.ErrOrderLimit)
}

func TestSetMarkPrice_FillsCrossedOrders(t *testing.T) {
	g := newTestGateway()
	buyID := place(t, g, domain.SideBuy, "1980")
	sellID := place(t, g, domain.SideSell, "2020")

	// drop to the buy price: the buy fills, the sell keeps resting
	g.SetMarkPrice(dec("1980"))

	fills := drainFills(g)
	require.Len(t, fills, 1)
	assert.Equal(t, buyID, fills[0].OrderID)
	assert.True(t, fills[0].Price.Equal(dec("1980")), "fills at the limit price")
	assert.Equal(t, 1, g.OpenOrders())

	g.SetMarkPrice(dec("2025"))
	fills = drainFills(g)
	require.Len(t, fills, 1)
	assert.Equal(t, sellID, fills[0].OrderID)
}

func TestSetMarkPrice_DuplicateDelivery(t *testing.T) {
	g := newTestGateway()
	g.DuplicateEveryN = 1 // every fill delivered twice

	place(t, g, domain.SideBuy, "1980")
	g.SetMarkPrice(dec("1970"))

	fills := drainFills(g)
	require.Len(t, fills, 2)
	assert.Equal(t, fills[0].EventID, fills[1].EventID, "redelivery reuses the event")
	assert.Equal(t, 0, g.OpenOrders())
}

func TestCancelOrder(t *testing.T) {
	g := newTestGateway()
	id := place(t, g, domain.SideBuy, "1980")

	require.NoError(t, g.CancelOrder(context.Background(), id))
	assert.Equal(t, 0, g.OpenOrders())

	assert.ErrorIs(t, g.CancelOrder(context.Background(), id), ports.ErrOrderNotFound)
}

func TestClose_Idempotent(t *testing.T) {
	g := newTestGateway()
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	_, err := g.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Ticker: "ETH", Side: domain.SideBuy, Price: dec("1980"), Quantity: dec("0.025"),
	})
	var fatal *ports.FatalError
	assert.ErrorAs(t, err, &fatal)

	_, ok := <-g.Fills()
	assert.False(t, ok, "fill channel closed")
}

func TestGetMarkPrice_TracksSetMarkPrice(t *testing.T) {
	g := newTestGateway()

	mark, err := g.GetMarkPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, mark.Equal(dec("2000")))

	g.SetMarkPrice(dec("2100"))
	mark, _ = g.GetMarkPrice(context.Background(), "ETH")
	assert.True(t, mark.Equal(dec("2100")))
}
