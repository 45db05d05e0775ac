package subscription

import (
	"context"
	"log"
	"strings"

	"watrack/backend/internal/tracking/domain"
	"watrack/backend/internal/wa/transport"
)

// TrackingStore resolves phone numbers to tracked-number rows.
type TrackingStore interface {
	FindOrCreate(ctx context.Context, userID, phoneNumber string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.TrackedNumber, error)
}

// Outcome reports the result of subscribing or unsubscribing one number.
type Outcome struct {
	PhoneNumber string `json:"phone_number"`
	TrackingID  int64  `json:"tracking_id,omitempty"`
	Subscribed  bool   `json:"subscribed"`
	Error       string `json:"error,omitempty"`
}

// Manager adds and removes presence subscriptions. One bad number never
// aborts the batch; each gets its own outcome.
type Manager struct {
	tracking      TrackingStore
	countryPrefix string
}

// NewManager creates a Manager. countryPrefix is prepended to bare national
// numbers, e.g. "91".
func NewManager(tracking TrackingStore, countryPrefix string) *Manager {
	return &Manager{tracking: tracking, countryPrefix: countryPrefix}
}

// Canonicalize normalizes a raw phone number to digits with a country code.
// Punctuation and a leading plus are stripped; a ten-digit national number
// gets the configured prefix.
func (m *Manager) Canonicalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 && m.countryPrefix != "" {
		return m.countryPrefix + digits
	}
	return digits
}

// Subscribe registers each number: resolve or create its tracked-number row,
// ask the server for presence updates, then record it in the table. A number
// only lands in the table when both steps succeeded, so presence events are
// never recorded for a number whose subscription failed.
func (m *Manager) Subscribe(ctx context.Context, client transport.Client, table *Table, userID string, numbers []string) []Outcome {
	out := make([]Outcome, 0, len(numbers))
	for _, raw := range numbers {
		phone := m.Canonicalize(raw)
		if phone == "" {
			out = append(out, Outcome{PhoneNumber: raw, Error: "not a phone number"})
			continue
		}
		trackingID, err := m.tracking.FindOrCreate(ctx, userID, phone)
		if err != nil {
			log.Printf("subscription: find or create %s: %v", phone, err)
			out = append(out, Outcome{PhoneNumber: phone, Error: "could not register number"})
			continue
		}
		if err := client.SubscribePresence(ctx, phone); err != nil {
			log.Printf("subscription: subscribe %s: %v", phone, err)
			out = append(out, Outcome{PhoneNumber: phone, TrackingID: trackingID, Error: "presence subscription failed"})
			continue
		}
		table.Set(phone, Entry{UserID: userID, TrackingID: trackingID})
		out = append(out, Outcome{PhoneNumber: phone, TrackingID: trackingID, Subscribed: true})
	}
	return out
}

// Unsubscribe removes numbers from the table so further presence events are
// ignored. Tracked-number rows and their history stay.
func (m *Manager) Unsubscribe(table *Table, numbers []string) []Outcome {
	out := make([]Outcome, 0, len(numbers))
	for _, raw := range numbers {
		phone := m.Canonicalize(raw)
		removed := table.Delete(phone)
		o := Outcome{PhoneNumber: phone}
		if !removed {
			o.Error = "not subscribed"
		}
		out = append(out, o)
	}
	return out
}

// Resubscribe rebuilds the table from the user's persisted tracked numbers and
// renews each server subscription. Runs on every successful connection, so
// tracking resumes after a reconnect or a process restart. A number whose
// renewal fails stays out of the table until the next connect or an explicit
// subscribe; the rest proceed. A failed listing keeps the table as it is.
func (m *Manager) Resubscribe(ctx context.Context, client transport.Client, table *Table, userID string) {
	numbers, err := m.tracking.ListByUser(ctx, userID)
	if err != nil {
		log.Printf("subscription: list tracked numbers for %s: %v", userID, err)
		return
	}
	table.Clear()
	for _, n := range numbers {
		if err := client.SubscribePresence(ctx, n.PhoneNumber); err != nil {
			log.Printf("subscription: resubscribe %s: %v", n.PhoneNumber, err)
			continue
		}
		table.Set(n.PhoneNumber, Entry{UserID: n.UserID, TrackingID: n.ID})
	}
}
