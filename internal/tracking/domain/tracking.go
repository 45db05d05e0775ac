package domain

import "time"

// TrackedNumber is a (user, phone number) pair being monitored. The id is the
// stable tracking identifier referenced by status intervals and notifications.
type TrackedNumber struct {
	ID          int64
	UserID      string
	PhoneNumber string // canonical form, country prefix included
	CreatedAt   time.Time
}

// StatusInterval is one recorded online period for a tracked number. An
// interval is open while OfflineTime is nil; DurationSeconds is set only when
// the interval is closed.
type StatusInterval struct {
	ID              int64
	TrackingID      int64
	OnlineTime      time.Time
	OfflineTime     *time.Time
	DurationSeconds *int64
}

// LastSeen is the latest known state of a tracked number: either currently
// online (open interval) or last offline timestamp.
type LastSeen struct {
	Timestamp time.Time
	Online    bool
}

// Activity is one recent online event for a user's dashboard feed.
type Activity struct {
	PhoneNumber     string
	OnlineTime      time.Time
	DurationSeconds *int64
}
