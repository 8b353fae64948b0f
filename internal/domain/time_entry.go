package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecondsPerHour converts hourly rate times seconds into an amount.
var SecondsPerHour = decimal.NewFromInt(3600)

// TimeEntry represents a normalized Toggl time entry in the domain.
type TimeEntry struct {
	ID          int64
	Billable    bool
	Description string
	Start       time.Time
	Stop        *time.Time
	UserID      int64
	DurationSec int64 // Always >= 0, see NormalizeDuration
	Deleted     bool
	Ongoing     bool
	Workspace   Workspace
	Project     *Project
}

// NormalizeDuration maps a raw Toggl duration to elapsed seconds.
// Toggl reports a running entry with a negative duration; in that case the
// elapsed whole seconds between start and now are returned and ongoing is true.
func NormalizeDuration(raw int64, start, now time.Time) (sec int64, ongoing bool) {
	if raw >= 0 {
		return raw, false
	}
	sec = int64(now.Sub(start) / time.Second)
	if sec < 0 {
		sec = 0
	}
	return sec, true
}

// HourlyRate returns the project's override rate if set, otherwise the
// workspace default.
func (e TimeEntry) HourlyRate() decimal.Decimal {
	if e.Project != nil && e.Project.Rate != nil {
		return *e.Project.Rate
	}
	return e.Workspace.DefaultHourlyRate
}

// RateSeconds is the hourly rate multiplied by the duration in seconds.
// It is exact; dividing it by 3600 yields the earned amount.
func (e TimeEntry) RateSeconds() decimal.Decimal {
	return e.HourlyRate().Mul(decimal.NewFromInt(e.DurationSec))
}

// Earned returns rate-per-minute times minutes for the entry.
func (e TimeEntry) Earned() decimal.Decimal {
	return e.RateSeconds().Div(SecondsPerHour)
}
