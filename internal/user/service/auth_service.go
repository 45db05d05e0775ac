package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"watrack/backend/internal/security"
	userdomain "watrack/backend/internal/user/domain"
)

// Sentinel errors for the auth service; handlers map them to HTTP status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidEmail           = errors.New("invalid email")
	ErrWeakPassword           = errors.New("password must be at least 8 characters")
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// AuthResult holds the outcome of Register or Login.
type AuthResult struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// AuthService implements password-based register and login.
type AuthService struct {
	users  UserRepo
	hasher *security.Hasher
	tokens *security.TokenProvider
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(users UserRepo, hasher *security.Hasher, tokens *security.TokenProvider) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens}
}

// Register creates a new user account and returns an access token for it.
// Returns ErrEmailAlreadyRegistered when the email is taken.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRe.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}

	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Login verifies the credentials and returns an access token.
// Returns ErrInvalidCredentials for an unknown email or wrong password; the
// two are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *userdomain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.IssueAccess(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		UserID:      u.ID,
		Email:       u.Email,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}
