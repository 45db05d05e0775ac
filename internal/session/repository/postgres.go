package repository

import (
	"context"
	"database/sql"
	"errors"

	"watrack/backend/internal/session/domain"
)

// PostgresRepository persists sessions in the wa_sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `session_id, user_id, status, auth_blob, created_at, updated_at`

// Upsert inserts the session or updates user, status, and auth blob on
// conflict, refreshing updated_at.
func (r *PostgresRepository) Upsert(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wa_sessions (session_id, user_id, status, auth_blob)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			auth_blob = EXCLUDED.auth_blob,
			updated_at = now()`,
		s.SessionID, nullString(s.UserID), string(s.Status), s.AuthBlob)
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM wa_sessions WHERE session_id = $1`, id)
	return scanSession(row)
}

// LatestByUser returns the most recently updated session owned by userID, or nil.
func (r *PostgresRepository) LatestByUser(ctx context.Context, userID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM wa_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, userID)
	return scanSession(row)
}

// LatestByUserAndStatus returns the most recently updated session owned by
// userID in the given status, or nil.
func (r *PostgresRepository) LatestByUserAndStatus(ctx context.Context, userID string, status domain.Status) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM wa_sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT 1`, userID, string(status))
	return scanSession(row)
}

// UpdateStatus sets only the status for id, refreshing updated_at.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE wa_sessions SET status = $2, updated_at = now()
		WHERE session_id = $1`, id, string(status))
	return err
}

// Delete removes the session row. Deleting a missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM wa_sessions WHERE session_id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s      domain.Session
		user   sql.NullString
		status string
	)
	err := row.Scan(&s.SessionID, &user, &status, &s.AuthBlob, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.UserID = user.String
	s.Status = domain.Status(status)
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
