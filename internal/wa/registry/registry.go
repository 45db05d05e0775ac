// Package registry tracks the live client for each running session.
package registry

import (
	"context"
	"errors"
	"sync"

	"watrack/backend/internal/wa/subscription"
	"watrack/backend/internal/wa/transport"
)

// ErrAlreadyRunning is returned when a session id is reserved or registered twice.
var ErrAlreadyRunning = errors.New("session is already running")

// Handle is the registry's view of one running session.
type Handle struct {
	SessionID string
	Client    transport.Client
	// Subs is the session's presence subscription set.
	Subs *subscription.Table
	// Cancel stops the session's event pump.
	Cancel context.CancelFunc
}

// Registry is a concurrency-safe map of session id to live handle. At most
// one handle exists per id; Reserve makes the check-and-claim atomic so two
// concurrent starts cannot both win.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Handle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Handle)}
}

// Reserve claims the id with a placeholder handle. The caller must follow up
// with Set once the client is connected, or Remove if the start fails.
// Returns ErrAlreadyRunning if the id is already claimed.
func (r *Registry) Reserve(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[sessionID]; ok {
		return ErrAlreadyRunning
	}
	r.entries[sessionID] = &Handle{SessionID: sessionID}
	return nil
}

// Set fills in the reserved handle. It is a no-op when the reservation was
// removed in the meantime, so a racing teardown wins.
func (r *Registry) Set(sessionID string, client transport.Client, subs *subscription.Table, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.entries[sessionID]; ok {
		h.Client = client
		h.Subs = subs
		h.Cancel = cancel
	}
}

// UpdateClient swaps the live client on an existing handle after a
// reconnect. Returns false when the handle was removed in the meantime.
func (r *Registry) UpdateClient(sessionID string, client transport.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[sessionID]
	if !ok {
		return false
	}
	h.Client = client
	return true
}

// Get returns a snapshot of the handle for the id, or nil when the session is
// not running.
func (r *Registry) Get(sessionID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[sessionID]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// Remove deletes and returns the handle. Returns nil when the id was not
// present, which tells a disconnect handler that teardown already happened
// elsewhere.
func (r *Registry) Remove(sessionID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.entries[sessionID]
	delete(r.entries, sessionID)
	return h
}

// Handles returns a snapshot of all current handles.
func (r *Registry) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.entries))
	for _, h := range r.entries {
		cp := *h
		out = append(out, &cp)
	}
	return out
}

// Len reports how many sessions are registered, reservations included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
