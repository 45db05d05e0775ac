// Package service holds the status recorder that turns presence transitions
// into durable interval and daily-stat writes.
package service

import (
	"context"
	"log"
	"time"
)

// IntervalStore is the minimal tracking repository needed by the recorder.
type IntervalStore interface {
	OpenInterval(ctx context.Context, trackingID int64, at time.Time) error
	CloseInterval(ctx context.Context, trackingID int64, at time.Time) (durationSeconds int64, closed bool, err error)
}

// StatsStore is the minimal stats repository needed by the recorder.
type StatsStore interface {
	AddInterval(ctx context.Context, trackingID int64, day time.Time, durationSeconds int64) error
}

// Recorder applies presence transitions to status intervals and folds closed
// intervals into daily stats. Callers must serialize calls per tracking id;
// the SQL guards underneath make racing duplicates harmless either way.
type Recorder struct {
	intervals IntervalStore
	stats     StatsStore
}

// NewRecorder returns a Recorder writing through the given stores.
// stats may be nil to disable daily aggregates.
func NewRecorder(intervals IntervalStore, stats StatsStore) *Recorder {
	return &Recorder{intervals: intervals, stats: stats}
}

// RecordAvailable opens an online interval at the given time. A duplicate
// "available" with an interval already open is a no-op.
func (r *Recorder) RecordAvailable(ctx context.Context, trackingID int64, at time.Time) error {
	return r.intervals.OpenInterval(ctx, trackingID, at)
}

// RecordUnavailable closes the latest open interval at the given time and
// rolls the closed duration into the day's aggregate. A missing open interval
// is a no-op. Stats failures are logged, not returned: the interval close is
// the durable record, the rollup is derived.
func (r *Recorder) RecordUnavailable(ctx context.Context, trackingID int64, at time.Time) error {
	duration, closed, err := r.intervals.CloseInterval(ctx, trackingID, at)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	if r.stats != nil {
		if err := r.stats.AddInterval(ctx, trackingID, at, duration); err != nil {
			log.Printf("tracking: daily stats rollup failed for tracking %d: %v", trackingID, err)
		}
	}
	return nil
}
