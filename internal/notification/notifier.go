// Package notification records presence transitions for later review and
// optionally fans them out to Kafka.
package notification

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"watrack/backend/internal/notification/domain"
	"watrack/backend/internal/notification/producer"
	"watrack/backend/internal/notification/repository"
)

// notifyTimeout bounds a single async notify so a slow store or broker cannot
// pile up goroutines indefinitely.
const notifyTimeout = 5 * time.Second

// Notifier persists presence transitions and emits them to an optional producer.
// Both sides are best-effort: failures are logged, never returned to the caller.
type Notifier struct {
	repo    repository.Repository
	emitter producer.Producer
}

// NewNotifier creates a Notifier. emitter may be nil when Kafka is not configured.
func NewNotifier(repo repository.Repository, emitter producer.Producer) *Notifier {
	return &Notifier{repo: repo, emitter: emitter}
}

// NotifyAsync records a presence transition in the background. The caller is
// never blocked; request cancellation does not abort an in-flight notify.
func (n *Notifier) NotifyAsync(userID string, trackingID int64, phoneNumber, status string) {
	if n == nil || n.repo == nil {
		return
	}
	note := &domain.Notification{
		ID:          uuid.New().String(),
		UserID:      userID,
		TrackingID:  trackingID,
		PhoneNumber: phoneNumber,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.repo.Create(ctx, note); err != nil {
			log.Printf("notification: persist failed for %s: %v", phoneNumber, err)
		}
		if n.emitter != nil {
			if err := n.emitter.Emit(ctx, note); err != nil {
				log.Printf("notification: emit failed for %s: %v", phoneNumber, err)
			}
		}
	}()
}
