// Package controller drives WhatsApp session lifecycles: pairing, credential
// persistence, reconnects, teardown, and routing presence events into
// interval records.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"watrack/backend/internal/security"
	sessiondomain "watrack/backend/internal/session/domain"
	sessionrepo "watrack/backend/internal/session/repository"
	"watrack/backend/internal/telemetry"
	trackingservice "watrack/backend/internal/tracking/service"
	"watrack/backend/internal/wa/authstate"
	"watrack/backend/internal/wa/qrcache"
	"watrack/backend/internal/wa/registry"
	"watrack/backend/internal/wa/subscription"
	"watrack/backend/internal/wa/transport"
)

// UserStore is the slice of user persistence the controller needs.
type UserStore interface {
	UpdatePhoneBySession(ctx context.Context, sessionID, phoneNumber string) error
}

// Notifier receives presence transitions for fan-out. May be a no-op.
type Notifier interface {
	NotifyAsync(userID string, trackingID int64, phoneNumber, status string)
}

// StatusInfo is the external view of a session's state.
type StatusInfo struct {
	SessionID string               `json:"session_id"`
	Status    sessiondomain.Status `json:"status"`
	Running   bool                 `json:"running"`
	Connected bool                 `json:"connected"`
	QRToken   string               `json:"qr_token,omitempty"`
}

// Controller owns all running sessions. One event pump goroutine runs per
// session; every state change for a session happens on its pump, so handlers
// never race each other.
type Controller struct {
	sessions sessionrepo.Repository
	users    UserStore
	codec    *authstate.Codec
	dialer   transport.Dialer
	registry *registry.Registry
	qr       qrcache.Cache
	qrTTL    time.Duration
	subs     *subscription.Manager
	recorder *trackingservice.Recorder
	notifier Notifier
	metrics  *telemetry.Metrics

	mu       sync.Mutex
	qrTokens map[string]string
}

// SetMetrics attaches service counters. Optional; a nil Metrics records nothing.
func (c *Controller) SetMetrics(m *telemetry.Metrics) {
	c.metrics = m
}

// New creates a Controller. notifier may be nil.
func New(
	sessions sessionrepo.Repository,
	users UserStore,
	codec *authstate.Codec,
	dialer transport.Dialer,
	reg *registry.Registry,
	qr qrcache.Cache,
	qrTTL time.Duration,
	subs *subscription.Manager,
	recorder *trackingservice.Recorder,
	notifier Notifier,
) *Controller {
	return &Controller{
		sessions: sessions,
		users:    users,
		codec:    codec,
		dialer:   dialer,
		registry: reg,
		qr:       qr,
		qrTTL:    qrTTL,
		subs:     subs,
		recorder: recorder,
		notifier: notifier,
		qrTokens: make(map[string]string),
	}
}

// CreateSession allocates a new pending session owned by userID.
func (c *Controller) CreateSession(ctx context.Context, userID string) (*sessiondomain.Session, error) {
	now := time.Now().UTC()
	s := &sessiondomain.Session{
		SessionID: "wa-" + uuid.New().String(),
		UserID:    userID,
		Status:    sessiondomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.sessions.Upsert(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// StartSession connects the session and begins pumping its events. A session
// with stored credentials resumes the linked device; one without, or whose
// blob cannot be opened, starts a fresh pairing. Returns ErrAlreadyRunning
// when the session already has a live connection.
func (c *Controller) StartSession(ctx context.Context, sessionID string) error {
	sess, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}

	if err := c.registry.Reserve(sessionID); err != nil {
		return err
	}

	state := c.decodeOrReset(ctx, sess)

	client, err := c.dialer.Dial(ctx, sessionID, state)
	if err != nil {
		c.registry.Remove(sessionID)
		if uerr := c.sessions.UpdateStatus(ctx, sessionID, sessiondomain.StatusDisconnected); uerr != nil {
			log.Printf("wa: mark %s disconnected: %v", sessionID, uerr)
		}
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	table := subscription.NewTable()
	c.registry.Set(sessionID, client, table, cancel)
	if c.registry.Get(sessionID) == nil {
		// Torn down while we were dialing.
		cancel()
		client.Disconnect()
		return nil
	}

	go c.pump(pumpCtx, sess, client, table)
	c.metrics.SessionStarted(ctx)
	return nil
}

// decodeOrReset opens the stored auth blob. An unreadable blob is wiped so the
// session falls back to a fresh pairing instead of failing every start.
func (c *Controller) decodeOrReset(ctx context.Context, sess *sessiondomain.Session) *authstate.State {
	if len(sess.AuthBlob) == 0 {
		return nil
	}
	state, err := c.codec.Decode(sess.AuthBlob)
	if err == nil {
		return state
	}
	if errors.Is(err, security.ErrDecrypt) {
		log.Printf("wa: auth blob for %s unreadable, forcing re-link", sess.SessionID)
	} else {
		log.Printf("wa: auth blob for %s corrupt (%v), forcing re-link", sess.SessionID, err)
	}
	sess.AuthBlob = nil
	sess.Status = sessiondomain.StatusPending
	if err := c.sessions.Upsert(ctx, sess); err != nil {
		log.Printf("wa: wipe auth blob for %s: %v", sess.SessionID, err)
	}
	return nil
}

// EndSession stops the session, logs the device out, and deletes the session
// row with its stored credentials. Idempotent: ending a session that is not
// running, or already gone, is not an error.
func (c *Controller) EndSession(ctx context.Context, sessionID string) error {
	// Removing the handle first makes the pump's disconnect handler see the
	// teardown and skip its reconnect attempt.
	if h := c.registry.Remove(sessionID); h != nil {
		if h.Cancel != nil {
			h.Cancel()
		}
		if h.Client != nil {
			if err := h.Client.Logout(ctx); err != nil {
				log.Printf("wa: logout %s: %v", sessionID, err)
			}
		}
	}

	c.qr.Evict(ctx, sessionID)
	c.setQRToken(sessionID, "")

	c.metrics.SessionEnded(ctx, "ended")
	return c.sessions.Delete(ctx, sessionID)
}

// SessionStatus reports the session's persisted status plus its live state.
func (c *Controller) SessionStatus(ctx context.Context, sessionID string) (*StatusInfo, error) {
	sess, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	info := &StatusInfo{SessionID: sessionID, Status: sess.Status}
	if h := c.registry.Get(sessionID); h != nil {
		info.Running = true
		if h.Client != nil && h.Client.IsConnected() {
			info.Connected = true
		}
	}
	if sess.Status == sessiondomain.StatusPending {
		info.QRToken = c.getQRToken(sessionID)
	}
	return info, nil
}

// Subscribe adds presence subscriptions for the user's numbers on the running
// session. Each number gets its own outcome.
func (c *Controller) Subscribe(ctx context.Context, sessionID, userID string, numbers []string) ([]subscription.Outcome, error) {
	h := c.registry.Get(sessionID)
	if h == nil || h.Client == nil || h.Subs == nil {
		return nil, ErrTransportUnavailable
	}
	return c.subs.Subscribe(ctx, h.Client, h.Subs, userID, numbers), nil
}

// Unsubscribe stops recording presence for the numbers. History is kept.
func (c *Controller) Unsubscribe(ctx context.Context, sessionID string, numbers []string) ([]subscription.Outcome, error) {
	h := c.registry.Get(sessionID)
	if h == nil || h.Subs == nil {
		return nil, ErrTransportUnavailable
	}
	return c.subs.Unsubscribe(h.Subs, numbers), nil
}

// ProfilePicture fetches the contact's profile picture URL over the session's
// live connection. Returns "" when the contact hides it.
func (c *Controller) ProfilePicture(ctx context.Context, sessionID, rawNumber string) (string, error) {
	h := c.registry.Get(sessionID)
	if h == nil || h.Client == nil {
		return "", ErrTransportUnavailable
	}
	return h.Client.ProfilePictureURL(ctx, c.subs.Canonicalize(rawNumber))
}

// QRCode resolves a pairing token to its raw code.
func (c *Controller) QRCode(ctx context.Context, token string) (string, bool) {
	return c.qr.Get(ctx, token)
}

// Shutdown disconnects every running session without logging the devices out,
// so stored credentials stay valid across a restart.
func (c *Controller) Shutdown() {
	for _, h := range c.registry.Handles() {
		// Remove first so the pump's disconnect handler does not reconnect.
		c.registry.Remove(h.SessionID)
		if h.Cancel != nil {
			h.Cancel()
		}
		if h.Client != nil {
			h.Client.Disconnect()
		}
	}
}

// pump consumes one session's event stream. It is the only goroutine mutating
// the session row while the session runs. A transient close gets a single
// reconnect attempt; a terminal close purges the stored credentials.
func (c *Controller) pump(ctx context.Context, sess *sessiondomain.Session, client transport.Client, table *subscription.Table) {
	events := client.Events()
	reconnected := false

	for {
		select {
		case <-ctx.Done():
			client.Disconnect()
			return
		case ev, ok := <-events:
			if !ok {
				// Stream ended without a terminal event; treat as transient.
				ev = transport.DisconnectedEvent{Reason: "event stream closed"}
			}
			switch e := ev.(type) {
			case transport.QREvent:
				c.handleQR(ctx, sess.SessionID, e)
			case transport.CredentialsEvent:
				c.handleCredentials(ctx, sess, e)
			case transport.ConnectedEvent:
				c.handleConnected(ctx, sess, client, table, e)
				reconnected = false
			case transport.PresenceEvent:
				c.handlePresence(ctx, table, e)
			case transport.DisconnectedEvent:
				next, resumed := c.handleDisconnected(ctx, sess, e, reconnected)
				if !resumed {
					return
				}
				client = next
				events = client.Events()
				reconnected = true
			}
		}
	}
}

func (c *Controller) handleQR(ctx context.Context, sessionID string, e transport.QREvent) {
	token, err := c.qr.Put(ctx, sessionID, e.Code, c.qrTTL)
	if err != nil {
		log.Printf("wa: cache pairing code for %s: %v", sessionID, err)
		return
	}
	c.setQRToken(sessionID, token)
}

func (c *Controller) handleCredentials(ctx context.Context, sess *sessiondomain.Session, e transport.CredentialsEvent) {
	if e.State == nil {
		return
	}
	blob, err := c.codec.Encode(e.State)
	if err != nil {
		log.Printf("wa: encode credentials for %s: %v", sess.SessionID, err)
		return
	}
	sess.AuthBlob = blob
	sess.Status = sessiondomain.StatusLinked
	if err := c.sessions.Upsert(ctx, sess); err != nil {
		log.Printf("wa: persist credentials for %s: %v", sess.SessionID, err)
	}
}

func (c *Controller) handleConnected(ctx context.Context, sess *sessiondomain.Session, client transport.Client, table *subscription.Table, e transport.ConnectedEvent) {
	sess.Status = sessiondomain.StatusLinked
	if err := c.sessions.UpdateStatus(ctx, sess.SessionID, sessiondomain.StatusLinked); err != nil {
		log.Printf("wa: mark %s linked: %v", sess.SessionID, err)
	}
	if phone := phoneFromJID(e.JID); phone != "" && c.users != nil {
		if err := c.users.UpdatePhoneBySession(ctx, sess.SessionID, phone); err != nil {
			log.Printf("wa: record phone for %s: %v", sess.SessionID, err)
		}
	}
	c.qr.Evict(ctx, sess.SessionID)
	c.setQRToken(sess.SessionID, "")
	// Rebuild subscriptions from the owner's persisted tracked numbers, so
	// tracking resumes after a reconnect or a process restart.
	c.subs.Resubscribe(ctx, client, table, sess.UserID)
}

func (c *Controller) handlePresence(ctx context.Context, table *subscription.Table, e transport.PresenceEvent) {
	entry, ok := table.Get(e.PhoneNumber)
	if !ok {
		return
	}
	now := time.Now().UTC()
	switch e.Status {
	case transport.PresenceAvailable:
		if err := c.recorder.RecordAvailable(ctx, entry.TrackingID, now); err != nil {
			log.Printf("wa: record available for %s: %v", e.PhoneNumber, err)
			return
		}
		c.metrics.PresenceEvent(ctx, string(transport.PresenceAvailable))
		if c.notifier != nil {
			c.notifier.NotifyAsync(entry.UserID, entry.TrackingID, e.PhoneNumber, string(transport.PresenceAvailable))
		}
	case transport.PresenceUnavailable:
		if err := c.recorder.RecordUnavailable(ctx, entry.TrackingID, now); err != nil {
			log.Printf("wa: record unavailable for %s: %v", e.PhoneNumber, err)
			return
		}
		c.metrics.PresenceEvent(ctx, string(transport.PresenceUnavailable))
		if c.notifier != nil {
			c.notifier.NotifyAsync(entry.UserID, entry.TrackingID, e.PhoneNumber, string(transport.PresenceUnavailable))
		}
	}
}

// handleDisconnected decides what a close means. Terminal closes purge the
// session. A transient close gets one redial, unless the session was torn
// down externally or a previous redial in this outage already failed.
func (c *Controller) handleDisconnected(ctx context.Context, sess *sessiondomain.Session, e transport.DisconnectedEvent, alreadyRetried bool) (transport.Client, bool) {
	if e.Terminal {
		log.Printf("wa: session %s logged out: %s", sess.SessionID, e.Reason)
		c.purge(ctx, sess)
		c.metrics.SessionEnded(ctx, "logged_out")
		return nil, false
	}

	if c.registry.Get(sess.SessionID) == nil {
		// EndSession or Shutdown already took the handle; nothing to do.
		return nil, false
	}

	if alreadyRetried {
		log.Printf("wa: session %s closed again before recovering, giving up: %s", sess.SessionID, e.Reason)
		c.stop(ctx, sess)
		return nil, false
	}

	log.Printf("wa: session %s closed (%s), reconnecting", sess.SessionID, e.Reason)
	c.metrics.Reconnect(ctx)
	state := c.decodeOrReset(ctx, sess)
	if state == nil {
		// Nothing to resume with; a fresh pairing needs an explicit start.
		c.stop(ctx, sess)
		return nil, false
	}

	client, err := c.dialer.Dial(ctx, sess.SessionID, state)
	if err != nil {
		log.Printf("wa: reconnect %s: %v", sess.SessionID, err)
		c.stop(ctx, sess)
		return nil, false
	}
	if !c.registry.UpdateClient(sess.SessionID, client) {
		client.Disconnect()
		return nil, false
	}
	return client, true
}

// purge removes a terminally closed session: registry entry, session row with
// its credentials, and cached pairing code all go.
func (c *Controller) purge(ctx context.Context, sess *sessiondomain.Session) {
	c.registry.Remove(sess.SessionID)
	c.qr.Evict(ctx, sess.SessionID)
	c.setQRToken(sess.SessionID, "")
	if err := c.sessions.Delete(ctx, sess.SessionID); err != nil {
		log.Printf("wa: purge %s: %v", sess.SessionID, err)
	}
}

// stop marks the session down but keeps its credentials for a later start.
func (c *Controller) stop(ctx context.Context, sess *sessiondomain.Session) {
	c.registry.Remove(sess.SessionID)
	if err := c.sessions.UpdateStatus(ctx, sess.SessionID, sessiondomain.StatusDisconnected); err != nil {
		log.Printf("wa: mark %s disconnected: %v", sess.SessionID, err)
	}
}

func (c *Controller) setQRToken(sessionID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		delete(c.qrTokens, sessionID)
		return
	}
	c.qrTokens[sessionID] = token
}

func (c *Controller) getQRToken(sessionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qrTokens[sessionID]
}

// phoneFromJID extracts the bare number from a JID like "9198765:12@s.whatsapp.net".
func phoneFromJID(jid string) string {
	user, _, ok := strings.Cut(jid, "@")
	if !ok {
		return ""
	}
	if device, _, found := strings.Cut(user, ":"); found {
		return device
	}
	return user
}
