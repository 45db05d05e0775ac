package meow

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"watrack/backend/internal/wa/authstate"
	"watrack/backend/internal/wa/transport"
)

// client adapts a *whatsmeow.Client to transport.Client. Protocol events are
// mapped to the typed event stream; everything the consumer does not care
// about is dropped here.
type client struct {
	wc     *whatsmeow.Client
	events chan transport.Event

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(wc *whatsmeow.Client) *client {
	c := &client{
		wc:     wc,
		events: make(chan transport.Event, 32),
		done:   make(chan struct{}),
	}
	wc.AddEventHandler(c.handleEvent)
	return c
}

func (c *client) Events() <-chan transport.Event {
	return c.events
}

func (c *client) SubscribePresence(ctx context.Context, phoneNumber string) error {
	return c.wc.SubscribePresence(types.NewJID(phoneNumber, types.DefaultUserServer))
}

func (c *client) ProfilePictureURL(ctx context.Context, phoneNumber string) (string, error) {
	jid := types.NewJID(phoneNumber, types.DefaultUserServer)
	info, err := c.wc.GetProfilePictureInfo(jid, nil)
	if errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) || errors.Is(err, whatsmeow.ErrProfilePictureNotSet) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

func (c *client) IsConnected() bool {
	return c.wc.IsConnected()
}

func (c *client) Logout(ctx context.Context) error {
	err := c.wc.Logout()
	c.shutdown()
	return err
}

func (c *client) Disconnect() {
	c.wc.Disconnect()
	c.shutdown()
}

// shutdown stops event delivery and closes the stream. Handler callbacks that
// race with it drop their events instead of blocking.
func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		close(c.events)
	})
}

func (c *client) send(ev transport.Event) {
	select {
	case <-c.done:
	case c.events <- ev:
	}
}

func (c *client) handleEvent(raw interface{}) {
	switch ev := raw.(type) {
	case *events.PairSuccess:
		c.send(transport.CredentialsEvent{State: c.snapshot()})
	case *events.Connected:
		c.send(transport.CredentialsEvent{State: c.snapshot()})
		jid := ""
		if c.wc.Store.ID != nil {
			jid = c.wc.Store.ID.String()
		}
		c.send(transport.ConnectedEvent{JID: jid})
	case *events.Disconnected:
		c.send(transport.DisconnectedEvent{Reason: "socket closed"})
	case *events.LoggedOut:
		c.send(transport.DisconnectedEvent{Terminal: true, Reason: ev.Reason.String()})
		c.shutdown()
	case *events.StreamReplaced:
		c.send(transport.DisconnectedEvent{Terminal: true, Reason: "stream replaced by another device"})
		c.shutdown()
	case *events.Presence:
		status := transport.PresenceAvailable
		if ev.Unavailable {
			status = transport.PresenceUnavailable
		}
		c.send(transport.PresenceEvent{
			PhoneNumber: ev.From.User,
			Status:      status,
			LastSeen:    ev.LastSeen,
		})
	}
}

// pumpQR forwards pairing codes from whatsmeow's QR channel. The channel ends
// with a terminal item: success stops quietly, anything else closes the
// session stream so the consumer can tear down.
func (c *client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.send(transport.QREvent{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			return
		default:
			c.send(transport.DisconnectedEvent{Terminal: false, Reason: "pairing ended: " + item.Event})
			return
		}
	}
}

// snapshot captures the device identity for persistence. Private halves of the
// curve keys are included so the snapshot survives a device-store wipe check.
func (c *client) snapshot() *authstate.State {
	s := c.wc.Store
	st := &authstate.State{
		RegistrationID: s.RegistrationID,
		AdvSecretKey:   s.AdvSecretKey,
		Platform:       s.Platform,
		PushName:       s.PushName,
		LinkedAt:       time.Now().UTC(),
	}
	if s.ID != nil {
		st.JID = s.ID.String()
	}
	if s.NoiseKey != nil && s.NoiseKey.Priv != nil {
		st.NoiseKey = s.NoiseKey.Priv[:]
	}
	if s.IdentityKey != nil && s.IdentityKey.Priv != nil {
		st.IdentityKey = s.IdentityKey.Priv[:]
	}
	if s.SignedPreKey != nil && s.SignedPreKey.Priv != nil {
		st.SignedPreKey = s.SignedPreKey.Priv[:]
	}
	return st
}
