// Package producer defines the interface for emitting presence notifications (e.g. to Kafka).
package producer

import (
	"context"

	"watrack/backend/internal/notification/domain"
)

// Producer emits notification events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single notification event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, n *domain.Notification) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
