package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"
)

func hmacProvider(ttl time.Duration) *TokenProvider {
	return NewHMACTokenProvider([]byte("test-secret"), "watrack-auth", "watrack-api", ttl)
}

func TestTokenProvider_IssueAndValidateHMAC(t *testing.T) {
	p := hmacProvider(time.Hour)

	token, expiresAt, err := p.IssueAccess("user-1", "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("IssueAccess returned empty token")
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("expiresAt should be in the future")
	}

	userID, email, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}
	if email != "a@b.com" {
		t.Errorf("email = %q, want %q", email, "a@b.com")
	}
}

func TestTokenProvider_IssueAndValidateECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := NewTokenProvider(key, key.Public(), "watrack-auth", "watrack-api", time.Hour)

	token, _, err := p.IssueAccess("user-2", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	userID, _, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if userID != "user-2" {
		t.Errorf("userID = %q, want %q", userID, "user-2")
	}
}

func TestTokenProvider_RejectsExpired(t *testing.T) {
	p := hmacProvider(-time.Minute)
	token, _, err := p.IssueAccess("user-1", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := p.ValidateAccess(token); err == nil {
		t.Fatal("ValidateAccess should reject an expired token")
	}
}

func TestTokenProvider_RejectsWrongIssuer(t *testing.T) {
	issuing := NewHMACTokenProvider([]byte("test-secret"), "other-issuer", "watrack-api", time.Hour)
	token, _, err := issuing.IssueAccess("user-1", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := hmacProvider(time.Hour).ValidateAccess(token); err == nil {
		t.Fatal("ValidateAccess should reject a token from another issuer")
	}
}

func TestTokenProvider_RejectsWrongKey(t *testing.T) {
	other := NewHMACTokenProvider([]byte("other-secret"), "watrack-auth", "watrack-api", time.Hour)
	token, _, err := other.IssueAccess("user-1", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, _, err := hmacProvider(time.Hour).ValidateAccess(token); err == nil {
		t.Fatal("ValidateAccess should reject a token signed with another secret")
	}
}

func TestTokenProvider_RejectsGarbage(t *testing.T) {
	if _, _, err := hmacProvider(time.Hour).ValidateAccess("not.a.jwt"); err == nil {
		t.Fatal("ValidateAccess should reject garbage input")
	}
}
