// Package domain defines the notification entity.
package domain

import "time"

// Notification records a presence transition for a tracked number so the
// owning user can review it later. Status is "available" or "unavailable".
type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TrackingID  int64     `json:"tracking_id"`
	PhoneNumber string    `json:"phone_number"`
	Status      string    `json:"status"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}
