package domain

import "time"

// Status is the persisted lifecycle state of a WhatsApp session.
type Status string

const (
	// StatusPending is set on create, before the account has been linked.
	StatusPending Status = "PENDING"
	// StatusLinked is set once a credential update has been observed and persisted.
	StatusLinked Status = "LINKED"
	// StatusDisconnected is set when a session is down and will not reconnect on
	// its own (restore failure, or transient close with no stored credentials).
	StatusDisconnected Status = "DISCONNECTED"
)

// Session represents one authenticated linkage to a WhatsApp account.
// SessionID is the sole external handle; at most one live connection exists
// for a given SessionID at any time.
type Session struct {
	SessionID string
	UserID    string // owning user; empty until claimed
	Status    Status
	AuthBlob  []byte // sealed credential envelope; nil until the first credential update
	CreatedAt time.Time
	UpdatedAt time.Time
}
