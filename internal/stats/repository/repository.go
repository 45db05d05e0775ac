package repository

import (
	"context"
	"time"

	"watrack/backend/internal/stats/domain"
)

// Repository defines persistence for daily per-number aggregates.
type Repository interface {
	// AddInterval folds one closed online interval into the day's aggregate,
	// creating the row on first use. durationSeconds must be >= 0.
	AddInterval(ctx context.Context, trackingID int64, day time.Time, durationSeconds int64) error
	// ListByTracking returns all daily aggregates for trackingID, newest first.
	ListByTracking(ctx context.Context, trackingID int64) ([]*domain.DailyStat, error)
}
