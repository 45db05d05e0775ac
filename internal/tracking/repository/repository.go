package repository

import (
	"context"
	"time"

	"watrack/backend/internal/tracking/domain"
)

// Repository defines persistence for tracked numbers and their status intervals.
type Repository interface {
	// FindOrCreate resolves (userID, phoneNumber) to its tracking id, creating
	// the row on first use. Idempotent.
	FindOrCreate(ctx context.Context, userID, phoneNumber string) (int64, error)
	// ListByUser returns all numbers tracked by userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.TrackedNumber, error)
	// GetByID returns the tracked number for trackingID, or nil if not found.
	GetByID(ctx context.Context, trackingID int64) (*domain.TrackedNumber, error)
	// Delete removes a tracked number and, via cascade, its intervals and stats.
	Delete(ctx context.Context, trackingID int64) error

	// OpenInterval opens an online interval at the given time. When an open
	// interval already exists for trackingID the call is a no-op; duplicate
	// "available" events never produce a second open row.
	OpenInterval(ctx context.Context, trackingID int64, at time.Time) error
	// CloseInterval closes the latest open interval at the given time, setting
	// duration to floor whole seconds clamped to zero. Returns closed=false
	// without error when no interval is open.
	CloseInterval(ctx context.Context, trackingID int64, at time.Time) (durationSeconds int64, closed bool, err error)
	// History returns all intervals for trackingID, newest first.
	History(ctx context.Context, trackingID int64) ([]*domain.StatusInterval, error)
	// LastSeen returns the latest known state for trackingID, or nil when no
	// interval was ever recorded.
	LastSeen(ctx context.Context, trackingID int64) (*domain.LastSeen, error)
	// RecentActivity returns up to limit recent online events across all of the
	// user's tracked numbers, newest first.
	RecentActivity(ctx context.Context, userID string, limit int) ([]*domain.Activity, error)
}
