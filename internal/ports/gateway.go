package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Gateway rejection and failure modes. Placement errors other than
// TransientError and ErrRateLimited are permanent: retrying the same
// request cannot succeed.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPrecisionRejected   = errors.New("order rejected for precision")
	ErrRateLimited         = errors.New("rate limited")
	ErrOrderLimit          = errors.New("max open orders reached")
	ErrOrderNotFound       = errors.New("order not found")
)

// TransientError wraps a failure worth retrying (network, timeouts,
// temporary exchange errors).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is an unrecoverable gateway condition (account suspended,
// instrument delisted). It halts the session.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return "fatal gateway error: " + e.Reason }

// Retryable reports whether a gateway error is worth another attempt.
func Retryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, ErrRateLimited)
}

// PlaceOrderRequest is a limit order submission.
type PlaceOrderRequest struct {
	Ticker   string
	Side     domain.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// FillEvent is one fill notification from the exchange stream.
// Delivery is at-least-once: duplicates are possible and consumers must
// deduplicate by order state.
type FillEvent struct {
	OrderID  string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	EventID  string
}

// ExchangeGateway is the per-exchange capability surface the engine
// consumes. The engine never branches on exchange identity; one variant
// implementation exists per exchange.
type ExchangeGateway interface {
	// PlaceOrder submits a limit order and returns the exchange order id.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error)

	// CancelOrder cancels a resting order by exchange order id.
	CancelOrder(ctx context.Context, orderID string) error

	// Fills is the fill event stream for this gateway's session.
	Fills() <-chan FillEvent

	// GetPrecision returns the instrument's tick size, lot size and
	// minimum quantity.
	GetPrecision(ctx context.Context, ticker string) (domain.Precision, error)

	// GetMarkPrice returns the current mark (mid) price.
	GetMarkPrice(ctx context.Context, ticker string) (decimal.Decimal, error)

	// MaxOpenOrders is the exchange's resting-order limit per account.
	MaxOpenOrders() int

	// Close releases the gateway connection.
	Close() error
}
