// Package authstate serializes WhatsApp device credentials into an encrypted
// blob suitable for storage alongside the session row.
package authstate

import "time"

// State is the portable snapshot of a linked device's identity. It carries
// enough material to locate and re-adopt the device record in the transport
// store after a restart. Key fields hold raw 32-byte curve keys.
type State struct {
	JID            string    `json:"jid"`
	RegistrationID uint32    `json:"registration_id"`
	NoiseKey       []byte    `json:"noise_key,omitempty"`
	IdentityKey    []byte    `json:"identity_key,omitempty"`
	SignedPreKey   []byte    `json:"signed_pre_key,omitempty"`
	AdvSecretKey   []byte    `json:"adv_secret_key,omitempty"`
	Platform       string    `json:"platform,omitempty"`
	PushName       string    `json:"push_name,omitempty"`
	LinkedAt       time.Time `json:"linked_at"`
}
