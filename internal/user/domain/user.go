package domain

import "time"

// User is an account that owns WhatsApp sessions and tracked numbers.
// PhoneNumber is the account's own WhatsApp number, filled in after linking.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	PhoneNumber  string
	CreatedAt    time.Time
}
