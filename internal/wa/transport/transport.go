// Package transport abstracts the WhatsApp connection behind a small client
// interface plus a typed event stream, so the lifecycle controller and its
// tests do not depend on the concrete protocol library.
package transport

import (
	"context"
	"time"

	"watrack/backend/internal/wa/authstate"
)

// Presence is the observed availability of a contact.
type Presence string

const (
	PresenceAvailable   Presence = "available"
	PresenceUnavailable Presence = "unavailable"
	PresenceUnknown     Presence = "unknown"
)

// Event is a message delivered on a session's event channel. Exactly one of
// the concrete types below is sent per occurrence.
type Event interface {
	isEvent()
}

// QREvent carries a fresh pairing code for an unlinked session. The transport
// may deliver several as earlier codes expire.
type QREvent struct {
	Code string
}

// CredentialsEvent carries the current device identity snapshot. Emitted when
// pairing completes and whenever the transport refreshes key material; the
// receiver must persist the latest snapshot it has seen.
type CredentialsEvent struct {
	State *authstate.State
}

// ConnectedEvent signals that the session socket is up and authenticated.
type ConnectedEvent struct {
	JID string
}

// DisconnectedEvent signals that the socket closed. Terminal reports whether
// the server ended the pairing (logged out); a terminal close makes the stored
// credentials useless.
type DisconnectedEvent struct {
	Terminal bool
	Reason   string
}

// PresenceEvent reports a contact's availability transition. LastSeen is the
// server-provided last seen timestamp, zero when withheld.
type PresenceEvent struct {
	PhoneNumber string
	Status      Presence
	LastSeen    time.Time
}

func (QREvent) isEvent()           {}
func (CredentialsEvent) isEvent()  {}
func (ConnectedEvent) isEvent()    {}
func (DisconnectedEvent) isEvent() {}
func (PresenceEvent) isEvent()     {}

// Client is a live WhatsApp connection for one session.
type Client interface {
	// Events returns the channel the transport delivers events on. The
	// channel is closed after the client disconnects for good.
	Events() <-chan Event
	// SubscribePresence asks the server to stream presence updates for the
	// given phone number (digits only, with country code).
	SubscribePresence(ctx context.Context, phoneNumber string) error
	// ProfilePictureURL fetches the contact's profile picture URL, or ""
	// when the contact hides it.
	ProfilePictureURL(ctx context.Context, phoneNumber string) (string, error)
	// IsConnected reports whether the socket is currently up.
	IsConnected() bool
	// Logout ends the pairing server-side and disconnects.
	Logout(ctx context.Context) error
	// Disconnect closes the socket without unlinking the device.
	Disconnect()
}

// Dialer opens client connections. state is nil for a fresh pairing; a
// non-nil state resumes the previously linked device.
type Dialer interface {
	Dial(ctx context.Context, sessionID string, state *authstate.State) (Client, error)
}
