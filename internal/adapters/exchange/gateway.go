package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

const defaultMaxOpenOrders = 100

// Options configures a Gateway.
type Options struct {
	BaseURL   string
	StreamURL string
	APIKey    string
	APISecret string
	Symbol    string
}

// Gateway implements ports.ExchangeGateway over the exchange's REST API
// and private WebSocket stream.
type Gateway struct {
	client    *Client
	stream    *fillStream
	symbol    string
	maxOrders int
}

// New connects the gateway: it resolves the instrument's order limits
// and starts the fill stream. ctx bounds the setup calls and the
// stream's lifetime.
func New(ctx context.Context, opts Options) (*Gateway, error) {
	if opts.BaseURL == "" || opts.StreamURL == "" {
		return nil, fmt.Errorf("exchange.New: base and stream URLs are required")
	}

	client := NewClient(opts.BaseURL, NewSigner(opts.APIKey, opts.APISecret))

	g := &Gateway{
		client:    client,
		symbol:    opts.Symbol,
		maxOrders: defaultMaxOpenOrders,
	}

	var inst instrumentResponse
	path := "/api/v1/instrument?symbol=" + url.QueryEscape(opts.Symbol)
	if err := client.get(ctx, client.marketLimiter, path, &inst); err != nil {
		return nil, fmt.Errorf("exchange.New: fetch instrument: %w", err)
	}
	if inst.MaxOpenOrders > 0 {
		g.maxOrders = inst.MaxOpenOrders
	}

	g.stream = newFillStream(opts.StreamURL, opts.Symbol)
	g.stream.start(ctx)
	return g, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (string, error) {
	body := placeOrderRequest{
		Symbol:      g.symbol,
		Side:        string(req.Side),
		Type:        "LIMIT",
		Price:       req.Price.String(),
		Quantity:    req.Quantity.String(),
		TimeInForce: "GTC",
	}

	var resp placeOrderResponse
	if err := g.client.post(ctx, g.client.orderLimiter, "/api/v1/order", body, &resp); err != nil {
		return "", fmt.Errorf("exchange.PlaceOrder: %w", err)
	}
	if resp.OrderID == "" {
		return "", &ports.TransientError{Err: fmt.Errorf("empty order id in response")}
	}
	return resp.OrderID, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	path := "/api/v1/order/" + url.PathEscape(orderID)
	if err := g.client.delete(ctx, g.client.orderLimiter, path); err != nil {
		return fmt.Errorf("exchange.CancelOrder: %w", err)
	}
	return nil
}

func (g *Gateway) Fills() <-chan ports.FillEvent { return g.stream.out }

func (g *Gateway) GetPrecision(ctx context.Context, ticker string) (domain.Precision, error) {
	var inst instrumentResponse
	path := "/api/v1/instrument?symbol=" + url.QueryEscape(toSymbol(ticker, g.symbol))
	if err := g.client.get(ctx, g.client.marketLimiter, path, &inst); err != nil {
		return domain.Precision{}, fmt.Errorf("exchange.GetPrecision: %w", err)
	}

	tick, err := decimal.NewFromString(inst.TickSize)
	if err != nil {
		return domain.Precision{}, fmt.Errorf("exchange.GetPrecision: parse tick size %q: %w", inst.TickSize, err)
	}
	lot, err := decimal.NewFromString(inst.LotSize)
	if err != nil {
		return domain.Precision{}, fmt.Errorf("exchange.GetPrecision: parse lot size %q: %w", inst.LotSize, err)
	}
	minQty, err := decimal.NewFromString(inst.MinQty)
	if err != nil {
		return domain.Precision{}, fmt.Errorf("exchange.GetPrecision: parse min qty %q: %w", inst.MinQty, err)
	}

	return domain.Precision{TickSize: tick, LotSize: lot, MinQty: minQty}, nil
}

func (g *Gateway) GetMarkPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	var resp markPriceResponse
	path := "/api/v1/markPrice?symbol=" + url.QueryEscape(toSymbol(ticker, g.symbol))
	if err := g.client.get(ctx, g.client.marketLimiter, path, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("exchange.GetMarkPrice: %w", err)
	}

	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange.GetMarkPrice: parse %q: %w", resp.Price, err)
	}
	return price, nil
}

func (g *Gateway) MaxOpenOrders() int { return g.maxOrders }

func (g *Gateway) Close() error {
	g.stream.stop()
	return nil
}

// toSymbol maps a bare ticker to the exchange symbol. A ticker that
// already looks like a full symbol passes through.
func toSymbol(ticker, fallback string) string {
	if ticker == "" {
		return fallback
	}
	if strings.Contains(ticker, "-") || strings.HasSuffix(ticker, "USDT") {
		return ticker
	}
	return ticker + "-USDT"
}
