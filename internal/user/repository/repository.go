package repository

import (
	"context"

	"watrack/backend/internal/user/domain"
)

// Repository defines persistence for user accounts.
type Repository interface {
	// Create persists the user. The user must have ID and PasswordHash set.
	Create(ctx context.Context, u *domain.User) error
	// GetByEmail returns the user for email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByID returns the user for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// UpdatePhoneBySession sets the phone number of the user owning the given
	// session. A session with no owner is a no-op.
	UpdatePhoneBySession(ctx context.Context, sessionID, phoneNumber string) error
}
