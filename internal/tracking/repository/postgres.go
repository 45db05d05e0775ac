package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"watrack/backend/internal/tracking/domain"
)

// PostgresRepository persists tracked numbers and status intervals.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a tracking repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindOrCreate resolves (userID, phoneNumber) to its tracking id, creating the
// row on first use. The conflict clause performs a no-op update so RETURNING
// yields the existing id on repeat calls.
func (r *PostgresRepository) FindOrCreate(ctx context.Context, userID, phoneNumber string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tracked_numbers (user_id, phone_number)
		VALUES ($1, $2)
		ON CONFLICT (user_id, phone_number) DO UPDATE SET created_at = tracked_numbers.created_at
		RETURNING id`,
		userID, phoneNumber).Scan(&id)
	return id, err
}

// ListByUser returns all numbers tracked by userID, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.TrackedNumber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, phone_number, created_at
		FROM tracked_numbers
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.TrackedNumber
	for rows.Next() {
		var tn domain.TrackedNumber
		if err := rows.Scan(&tn.ID, &tn.UserID, &tn.PhoneNumber, &tn.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &tn)
	}
	return out, rows.Err()
}

// GetByID returns the tracked number for trackingID, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, trackingID int64) (*domain.TrackedNumber, error) {
	var tn domain.TrackedNumber
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, phone_number, created_at
		FROM tracked_numbers WHERE id = $1`, trackingID).
		Scan(&tn.ID, &tn.UserID, &tn.PhoneNumber, &tn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tn, nil
}

// Delete removes a tracked number; intervals and stats go with it by cascade.
func (r *PostgresRepository) Delete(ctx context.Context, trackingID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tracked_numbers WHERE id = $1`, trackingID)
	return err
}

// OpenInterval opens an online interval at the given time. The partial unique
// index on open intervals turns duplicate "available" events into no-ops.
func (r *PostgresRepository) OpenInterval(ctx context.Context, trackingID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_intervals (tracking_id, online_time)
		VALUES ($1, $2)
		ON CONFLICT (tracking_id) WHERE offline_time IS NULL DO NOTHING`,
		trackingID, at.UTC())
	return err
}

// CloseInterval closes the latest open interval at the given time. The
// offline_time IS NULL guard serializes concurrent closes: only one claims the
// row, any other sees zero rows and reports closed=false. Duration is floor
// whole seconds, clamped to zero against clock skew.
func (r *PostgresRepository) CloseInterval(ctx context.Context, trackingID int64, at time.Time) (int64, bool, error) {
	var duration int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE status_intervals
		SET offline_time = $2,
		    duration_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2 - online_time))))::bigint
		WHERE id = (
			SELECT id FROM status_intervals
			WHERE tracking_id = $1 AND offline_time IS NULL
			ORDER BY id DESC
			LIMIT 1
		) AND offline_time IS NULL
		RETURNING duration_seconds`,
		trackingID, at.UTC()).Scan(&duration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return duration, true, nil
}

// History returns all intervals for trackingID, newest first.
func (r *PostgresRepository) History(ctx context.Context, trackingID int64) ([]*domain.StatusInterval, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tracking_id, online_time, offline_time, duration_seconds
		FROM status_intervals
		WHERE tracking_id = $1
		ORDER BY online_time DESC`, trackingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StatusInterval
	for rows.Next() {
		var (
			iv       domain.StatusInterval
			offline  sql.NullTime
			duration sql.NullInt64
		)
		if err := rows.Scan(&iv.ID, &iv.TrackingID, &iv.OnlineTime, &offline, &duration); err != nil {
			return nil, err
		}
		if offline.Valid {
			t := offline.Time
			iv.OfflineTime = &t
		}
		if duration.Valid {
			d := duration.Int64
			iv.DurationSeconds = &d
		}
		out = append(out, &iv)
	}
	return out, rows.Err()
}

// LastSeen returns the latest known state for trackingID: the open interval's
// online time when currently online, otherwise the newest offline time. Nil
// when no interval was ever recorded.
func (r *PostgresRepository) LastSeen(ctx context.Context, trackingID int64) (*domain.LastSeen, error) {
	var ls domain.LastSeen
	err := r.db.QueryRowContext(ctx, `
		SELECT online_time, TRUE
		FROM status_intervals
		WHERE tracking_id = $1 AND offline_time IS NULL
		ORDER BY online_time DESC
		LIMIT 1`, trackingID).Scan(&ls.Timestamp, &ls.Online)
	if err == nil {
		return &ls, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT offline_time, FALSE
		FROM status_intervals
		WHERE tracking_id = $1 AND offline_time IS NOT NULL
		ORDER BY offline_time DESC
		LIMIT 1`, trackingID).Scan(&ls.Timestamp, &ls.Online)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ls, nil
}

// RecentActivity returns up to limit recent online events across all of the
// user's tracked numbers, newest first.
func (r *PostgresRepository) RecentActivity(ctx context.Context, userID string, limit int) ([]*domain.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT tn.phone_number, si.online_time, si.duration_seconds
		FROM status_intervals si
		JOIN tracked_numbers tn ON si.tracking_id = tn.id
		WHERE tn.user_id = $1
		ORDER BY si.online_time DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Activity
	for rows.Next() {
		var (
			a        domain.Activity
			duration sql.NullInt64
		)
		if err := rows.Scan(&a.PhoneNumber, &a.OnlineTime, &duration); err != nil {
			return nil, err
		}
		if duration.Valid {
			d := duration.Int64
			a.DurationSeconds = &d
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
