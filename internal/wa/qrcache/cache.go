// Package qrcache holds pairing codes behind short-lived random tokens so the
// raw code never appears in a session API response.
package qrcache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Cache stores the latest pairing code per session, addressable by an opaque
// token. Codes expire on their own; replacing a session's code invalidates
// the previous token.
type Cache interface {
	// Put stores code for sessionID with the given ttl and returns the
	// token a client can redeem it with.
	Put(ctx context.Context, sessionID, code string, ttl time.Duration) (token string, err error)
	// Get returns the code for token. ok is false when the token is
	// unknown, expired, or superseded.
	Get(ctx context.Context, token string) (code string, ok bool)
	// Evict drops the session's current code, if any.
	Evict(ctx context.Context, sessionID string)
}

type entry struct {
	sessionID string
	code      string
	expiresAt time.Time
}

// MemoryCache is an in-memory Cache implementation.
type MemoryCache struct {
	mu        sync.RWMutex
	byToken   map[string]entry
	bySession map[string]string
	nowF      func() time.Time
}

// NewMemoryCache returns a new in-memory pairing code cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		byToken:   make(map[string]entry),
		bySession: make(map[string]string),
		nowF:      time.Now().UTC,
	}
}

// Put stores code for sessionID until ttl elapses, dropping any code the
// session had before.
func (c *MemoryCache) Put(ctx context.Context, sessionID, code string, ttl time.Duration) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.bySession[sessionID]; ok {
		delete(c.byToken, old)
	}
	c.byToken[token] = entry{sessionID: sessionID, code: code, expiresAt: c.nowF().Add(ttl)}
	c.bySession[sessionID] = token
	return token, nil
}

// Get returns the code for token if present and not expired.
func (c *MemoryCache) Get(ctx context.Context, token string) (string, bool) {
	c.mu.RLock()
	e, ok := c.byToken[token]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(c.nowF()) {
		c.mu.Lock()
		if cur, ok := c.byToken[token]; ok && !cur.expiresAt.After(c.nowF()) {
			delete(c.byToken, token)
			if c.bySession[cur.sessionID] == token {
				delete(c.bySession, cur.sessionID)
			}
		}
		c.mu.Unlock()
		return "", false
	}
	return e.code, true
}

// Evict drops the session's current code.
func (c *MemoryCache) Evict(ctx context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token, ok := c.bySession[sessionID]; ok {
		delete(c.byToken, token)
		delete(c.bySession, sessionID)
	}
}

// Sweep removes expired entries. Run it periodically so abandoned pairings do
// not accumulate.
func (c *MemoryCache) Sweep() {
	now := c.nowF()
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, e := range c.byToken {
		if !e.expiresAt.After(now) {
			delete(c.byToken, token)
			if c.bySession[e.sessionID] == token {
				delete(c.bySession, e.sessionID)
			}
		}
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (c *MemoryCache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}
