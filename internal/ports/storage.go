package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// TradeStorage persists the trading record across restarts.
type TradeStorage interface {
	// SaveFill records one processed fill event.
	SaveFill(ctx context.Context, sessionID string, fill domain.Fill) error

	// SaveRoundTrip records a completed buy/sell pair.
	SaveRoundTrip(ctx context.Context, sessionID string, rt domain.RoundTrip) error

	// SaveSession upserts the session summary. Called at startup, after
	// each status interval, and at shutdown.
	SaveSession(ctx context.Context, s domain.SessionSummary) error

	// GetSession returns a previously saved session summary.
	GetSession(ctx context.Context, sessionID string) (domain.SessionSummary, error)

	// Close closes the database cleanly.
	Close() error
}
