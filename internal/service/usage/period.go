package usage

import (
	"time"

	"tenant-gate/internal/domain"
)

// CalendarMonth returns the calendar month containing now in loc.
func CalendarMonth(now time.Time, loc *time.Location) domain.BillingPeriod {
	t := now.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return domain.BillingPeriod{Start: start, End: domain.AddMonths(start, 1)}
}

// RollingPeriod returns the subscription window containing now. A window
// that has already ended is rolled forward one month at a time from its
// anchor, so the day of month stays stable across renewals; short months
// end on their last day.
func RollingPeriod(start, end, now time.Time) domain.BillingPeriod {
	if !end.After(start) {
		end = domain.AddMonths(start, 1)
	}
	if now.Before(end) {
		return domain.BillingPeriod{Start: start, End: end}
	}
	anchor := end
	for months := 1; ; months++ {
		next := domain.AddMonths(end, months)
		if now.Before(next) {
			return domain.BillingPeriod{Start: anchor, End: next}
		}
		anchor = next
	}
}
