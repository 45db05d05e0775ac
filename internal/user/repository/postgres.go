package repository

import (
	"context"
	"database/sql"
	"errors"

	"watrack/backend/internal/user/domain"
)

// PostgresRepository persists users in the users table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the user to the database. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, phone_number)
		VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.PasswordHash, nullString(u.PhoneNumber))
	return err
}

// GetByEmail returns the user for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, phone_number, created_at
		FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, phone_number, created_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// UpdatePhoneBySession sets the phone number of the user owning sessionID.
// A session with no owner matches no rows, which is not an error.
func (r *PostgresRepository) UpdatePhoneBySession(ctx context.Context, sessionID, phoneNumber string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET phone_number = $2
		WHERE id = (SELECT user_id FROM wa_sessions WHERE session_id = $1)`,
		sessionID, phoneNumber)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u     domain.User
		phone sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &phone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.PhoneNumber = phone.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
