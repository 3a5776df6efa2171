package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/gridbot/internal/ports"
)

// backoffDelay returns the exponential backoff for a retry attempt,
// capped at maxRetryDelay.
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		return baseRetryDelay
	}
	if attempt > 20 {
		return maxRetryDelay
	}
	d := baseRetryDelay * time.Duration(1<<attempt)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// placeWithRetry submits an order with bounded retries and exponential
// backoff. Fatal and permanent rejections return immediately; only
// transient failures and rate limits are retried. Exhausting retries is
// not fatal to the session; the caller degrades the level instead.
func (e *Engine) placeWithRetry(ctx context.Context, req ports.PlaceOrderRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxPlaceAttempts; attempt++ {
		orderID, err := e.gateway.PlaceOrder(ctx, req)
		if err == nil {
			return orderID, nil
		}
		lastErr = err

		var fatal *ports.FatalError
		if errors.As(err, &fatal) {
			return "", err
		}
		if !ports.Retryable(err) {
			return "", err
		}

		wait := backoffDelay(attempt)
		slog.Debug("placement retry",
			"side", req.Side, "price", req.Price,
			"attempt", attempt+1, "wait", wait, "err", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("placement failed after %d attempts: %w", maxPlaceAttempts, lastErr)
}
