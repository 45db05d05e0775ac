// Package meow implements the transport interfaces on go.mau.fi/whatsmeow.
package meow

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"watrack/backend/internal/wa/authstate"
	"watrack/backend/internal/wa/transport"
)

// Dialer opens whatsmeow clients backed by a shared sqlstore container. The
// container keeps full protocol state (prekeys, sender keys, app state); the
// encrypted blob we store per session only carries enough identity to find
// the device record again.
type Dialer struct {
	container *sqlstore.Container
}

// NewDialer opens the whatsmeow device store on the given Postgres DSN.
func NewDialer(dsn string) (*Dialer, error) {
	container, err := sqlstore.New("pgx", dsn, waLog.Stdout("wa-store", "WARN", false))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	return &Dialer{container: container}, nil
}

// Dial connects a client for the session. A nil state starts a fresh pairing
// and streams QR codes on the event channel; a non-nil state resumes the
// device it names. A state whose device record is gone falls back to a fresh
// pairing rather than failing, since only re-linking can recover it.
func (d *Dialer) Dial(ctx context.Context, sessionID string, state *authstate.State) (transport.Client, error) {
	device, err := d.device(state)
	if err != nil {
		return nil, err
	}

	wc := whatsmeow.NewClient(device, waLog.Stdout("wa-"+sessionID, "WARN", false))
	c := newClient(wc)

	if device.ID == nil {
		qrChan, err := wc.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("qr channel for %s: %w", sessionID, err)
		}
		go c.pumpQR(qrChan)
	}

	if err := wc.Connect(); err != nil {
		c.shutdown()
		return nil, fmt.Errorf("connect %s: %w", sessionID, err)
	}
	return c, nil
}

func (d *Dialer) device(state *authstate.State) (*store.Device, error) {
	if state == nil || state.JID == "" {
		return d.container.NewDevice(), nil
	}
	jid, err := types.ParseJID(state.JID)
	if err != nil {
		return nil, fmt.Errorf("parse stored jid %q: %w", state.JID, err)
	}
	device, err := d.container.GetDevice(jid)
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", jid, err)
	}
	if device == nil {
		return d.container.NewDevice(), nil
	}
	return device, nil
}
