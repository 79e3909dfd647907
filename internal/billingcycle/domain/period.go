package domain

import (
	"fmt"
	"time"
)

// Minimum whole days that must pass after an invoice before the same
// instance can be invoiced again.
const (
	monthlyMinDays    = 28
	quarterlyMinDays  = 88
	halfYearlyMinDays = 120
	yearlyMinDays     = 340
)

// Period is a billing window with inclusive calendar-day bounds.
type Period struct {
	Start                       time.Time
	End                         time.Time
	MinimumDaysSinceLastInvoice int
}

// Days counts the calendar days in the period, both ends included.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Contains reports whether day falls inside the period.
func (p Period) Contains(day time.Time) bool {
	d := truncate(day)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("%s..%s", p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))
}

// ComputePeriod returns the billing window containing reference for the
// given frequency. Yearly periods are rolling and start on reference itself.
func ComputePeriod(freq Frequency, reference time.Time) (Period, error) {
	ref := truncate(reference)
	year, month, _ := ref.Date()

	switch freq {
	case Monthly:
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return Period{
			Start:                       start,
			End:                         start.AddDate(0, 1, -1),
			MinimumDaysSinceLastInvoice: monthlyMinDays,
		}, nil
	case Quarterly:
		firstMonth := time.Month((int(month)-1)/3*3 + 1)
		start := time.Date(year, firstMonth, 1, 0, 0, 0, 0, time.UTC)
		return Period{
			Start:                       start,
			End:                         start.AddDate(0, 3, -1),
			MinimumDaysSinceLastInvoice: quarterlyMinDays,
		}, nil
	case HalfYearly:
		if month <= time.June {
			return Period{
				Start:                       time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
				End:                         time.Date(year, time.June, 30, 0, 0, 0, 0, time.UTC),
				MinimumDaysSinceLastInvoice: halfYearlyMinDays,
			}, nil
		}
		return Period{
			Start:                       time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC),
			End:                         time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
			MinimumDaysSinceLastInvoice: halfYearlyMinDays,
		}, nil
	case Yearly:
		return Period{
			Start:                       ref,
			End:                         ref.AddDate(1, 0, -1),
			MinimumDaysSinceLastInvoice: yearlyMinDays,
		}, nil
	}
	return Period{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
}

// DaysBetween is the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(truncate(b).Sub(truncate(a)).Hours() / 24)
}

func truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
