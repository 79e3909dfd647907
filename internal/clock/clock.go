package clock

import (
	"context"
	"time"
)

type Clock interface {
	Now(ctx context.Context) time.Time
}

// Today truncates the clock reading to a UTC calendar day.
func Today(ctx context.Context, c Clock) time.Time {
	return Date(c.Now(ctx))
}

// Date drops the time of day, keeping the calendar day of t in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type asOfKey struct{}

// WithAsOf pins the clock reading for everything running under ctx. The CLI
// uses it to replay a reconciliation or eligibility check for a past day.
func WithAsOf(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, asOfKey{}, t.UTC())
}

func asOf(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(asOfKey{}).(time.Time)
	return t, ok
}
