// Package repository provides persistence for notifications.
package repository

import (
	"context"

	"watrack/backend/internal/notification/domain"
)

// Repository stores and retrieves notifications.
type Repository interface {
	// Create inserts a new notification row.
	Create(ctx context.Context, n *domain.Notification) error
	// ListByUser returns the user's notifications, newest first, up to limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	// MarkRead flags a single notification as read. Returns true if a row was updated.
	MarkRead(ctx context.Context, userID, id string) (bool, error)
	// MarkAllRead flags every unread notification for the user as read.
	MarkAllRead(ctx context.Context, userID string) error
}
