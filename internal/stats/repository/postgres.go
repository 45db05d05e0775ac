package repository

import (
	"context"
	"database/sql"
	"time"

	"watrack/backend/internal/stats/domain"
)

// PostgresRepository persists daily aggregates in the daily_stats table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a stats repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AddInterval folds one closed interval into the (tracking_id, date) aggregate.
func (r *PostgresRepository) AddInterval(ctx context.Context, trackingID int64, day time.Time, durationSeconds int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_stats (tracking_id, date, total_online_seconds, login_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tracking_id, date) DO UPDATE SET
			total_online_seconds = daily_stats.total_online_seconds + EXCLUDED.total_online_seconds,
			login_count = daily_stats.login_count + 1`,
		trackingID, day.UTC().Truncate(24*time.Hour), durationSeconds)
	return err
}

// ListByTracking returns all daily aggregates for trackingID, newest first.
func (r *PostgresRepository) ListByTracking(ctx context.Context, trackingID int64) ([]*domain.DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tracking_id, date, total_online_seconds, login_count
		FROM daily_stats
		WHERE tracking_id = $1
		ORDER BY date DESC`, trackingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DailyStat
	for rows.Next() {
		var ds domain.DailyStat
		if err := rows.Scan(&ds.ID, &ds.TrackingID, &ds.Date, &ds.TotalOnlineSeconds, &ds.LoginCount); err != nil {
			return nil, err
		}
		out = append(out, &ds)
	}
	return out, rows.Err()
}
