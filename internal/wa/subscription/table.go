// Package subscription keeps the per-session bookkeeping of which phone
// numbers presence updates should be recorded for.
package subscription

import "sync"

// Entry maps a subscribed number back to its owner and tracked-number row.
type Entry struct {
	UserID     string
	TrackingID int64
}

// Table is the concurrency-safe subscription set for one running session.
// Presence events for numbers absent from the table are ignored.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Set records a subscription for the canonical phone number.
func (t *Table) Set(phoneNumber string, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[phoneNumber] = e
}

// Get looks up the subscription for the canonical phone number.
func (t *Table) Get(phoneNumber string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[phoneNumber]
	return e, ok
}

// Delete removes the subscription. Returns true when an entry existed.
func (t *Table) Delete(phoneNumber string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[phoneNumber]
	delete(t.entries, phoneNumber)
	return ok
}

// Clear drops every entry, ahead of a rebuild from the persisted set.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]Entry)
}

// Len reports the number of active subscriptions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
