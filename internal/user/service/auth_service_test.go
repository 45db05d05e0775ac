package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"watrack/backend/internal/security"
	userdomain "watrack/backend/internal/user/domain"
)

// mockUserRepo implements UserRepo for tests.
type mockUserRepo struct {
	byEmail   map[string]*userdomain.User
	created   []*userdomain.User
	getErr    error
	createErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byEmail: make(map[string]*userdomain.User)}
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.byEmail[email], nil
}

func (m *mockUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byEmail[u.Email] = u
	m.created = append(m.created, u)
	return nil
}

func newTestService(repo UserRepo) *AuthService {
	hasher := security.NewHasher(bcrypt.MinCost)
	tokens := security.NewHMACTokenProvider([]byte("test-secret"), "watrack-auth", "watrack-api", time.Hour)
	return NewAuthService(repo, hasher, tokens)
}

func TestRegister(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)

	res, err := svc.Register(context.Background(), "User@Example.com", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.UserID == "" {
		t.Error("Register should return a user id")
	}
	if res.Email != "user@example.com" {
		t.Errorf("Email = %q, want lowercased %q", res.Email, "user@example.com")
	}
	if res.AccessToken == "" {
		t.Error("Register should return an access token")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d users, want 1", len(repo.created))
	}
	if repo.created[0].PasswordHash == "password1" {
		t.Error("password must not be stored in plaintext")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.com", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "a@b.com", "password2"); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("Register duplicate = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newMockUserRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", "password1"); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("Register bad email = %v, want ErrInvalidEmail", err)
	}
	if _, err := svc.Register(ctx, "a@b.com", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Register short password = %v, want ErrWeakPassword", err)
	}
}

func TestLogin(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.com", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := svc.Login(ctx, "a@b.com", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" {
		t.Error("Login should return an access token")
	}
}

func TestLogin_WrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@b.com", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(ctx, "a@b.com", "nope-nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login wrong password = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "who@b.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login unknown email = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_RepoErrorPropagates(t *testing.T) {
	repo := newMockUserRepo()
	repo.getErr = errors.New("db down")
	svc := newTestService(repo)

	if _, err := svc.Login(context.Background(), "a@b.com", "password1"); err == nil {
		t.Fatal("Login should propagate repository errors")
	}
}
