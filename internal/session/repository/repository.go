package repository

import (
	"context"

	"watrack/backend/internal/session/domain"
)

// Repository defines persistence for WhatsApp sessions.
type Repository interface {
	// Upsert inserts the session or, on conflict by session id, updates user,
	// status, and auth blob, refreshing updated_at.
	Upsert(ctx context.Context, s *domain.Session) error
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// LatestByUser returns the most recently updated session owned by userID, or nil.
	LatestByUser(ctx context.Context, userID string) (*domain.Session, error)
	// LatestByUserAndStatus returns the most recently updated session owned by
	// userID in the given status, or nil.
	LatestByUserAndStatus(ctx context.Context, userID string, status domain.Status) (*domain.Session, error)
	// UpdateStatus sets only the status for id, refreshing updated_at.
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	// Delete removes the session row. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error
}
