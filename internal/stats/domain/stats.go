package domain

import "time"

// DailyStat aggregates one tracked number's activity for one calendar day:
// total seconds spent online and how many online periods were observed.
type DailyStat struct {
	ID                 int64
	TrackingID         int64
	Date               time.Time // midnight UTC
	TotalOnlineSeconds int64
	LoginCount         int64
}
