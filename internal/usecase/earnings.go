package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"toggl-earnings/internal/domain"
	"toggl-earnings/internal/ports"
)

// EarningsUseCase sums billable earnings for a calendar month.
type EarningsUseCase struct {
	Log   *slog.Logger
	Toggl ports.TimeTracker
	// Location decides where a month starts and ends. Nil keeps the
	// reference time's own location.
	Location *time.Location
}

// MonthBounds returns midnight of the first and of the last day of the month
// containing ref, in ref's location.
func MonthBounds(ref time.Time) (first, last time.Time) {
	y, m, _ := ref.Date()
	first = time.Date(y, m, 1, 0, 0, 0, 0, ref.Location())
	last = first.AddDate(0, 1, -1)
	return first, last
}

// ComputeMonthlyEarnings returns the amount earned by billable entries in the
// month containing ref. Rates times seconds are summed exactly and divided
// once, so the total does not drift with the number of entries. No rounding
// is applied for presentation.
func (uc *EarningsUseCase) ComputeMonthlyEarnings(ctx context.Context, ref time.Time) (decimal.Decimal, error) {
	if uc.Toggl == nil {
		return decimal.Zero, errors.New("usecase not initialized: missing dependencies")
	}
	if uc.Location != nil {
		ref = ref.In(uc.Location)
	}
	first, last := MonthBounds(ref)

	sum := decimal.Zero
	var seen, billable int
	for e, err := range uc.Toggl.TimeEntries(ctx, first, last) {
		if err != nil {
			return decimal.Zero, err
		}
		seen++
		if !e.Billable {
			continue
		}
		billable++
		sum = sum.Add(e.RateSeconds())
	}
	total := sum.Div(domain.SecondsPerHour)

	uc.Log.Debug("computed monthly earnings",
		slog.Time("from", first),
		slog.Time("to", last),
		slog.Int("entries", seen),
		slog.Int("billable", billable),
		slog.String("total", total.String()),
	)
	return total, nil
}
