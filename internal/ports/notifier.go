package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Notifier presents ladder status to the user. The console
// implementation prints a compact line or a full table.
type Notifier interface {
	// NotifyStatus reports the current ladder state.
	NotifyStatus(ctx context.Context, s domain.StatusSnapshot) error

	// NotifyHalt reports session termination with the reason.
	NotifyHalt(ctx context.Context, reason string) error
}
