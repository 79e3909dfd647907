package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputePeriod(t *testing.T) {
	cases := []struct {
		name    string
		freq    Frequency
		ref     time.Time
		start   time.Time
		end     time.Time
		minDays int
		days    int
	}{
		{"monthly leap february", Monthly, day(2024, 2, 14), day(2024, 2, 1), day(2024, 2, 29), 28, 29},
		{"monthly december", Monthly, day(2023, 12, 31), day(2023, 12, 1), day(2023, 12, 31), 28, 31},
		{"quarterly q3", Quarterly, day(2024, 8, 10), day(2024, 7, 1), day(2024, 9, 30), 88, 92},
		{"quarterly q1", Quarterly, day(2023, 3, 31), day(2023, 1, 1), day(2023, 3, 31), 88, 90},
		{"half year first", HalfYearly, day(2024, 5, 5), day(2024, 1, 1), day(2024, 6, 30), 120, 182},
		{"half year boundary june", HalfYearly, day(2024, 6, 30), day(2024, 1, 1), day(2024, 6, 30), 120, 182},
		{"half year second", HalfYearly, day(2024, 7, 1), day(2024, 7, 1), day(2024, 12, 31), 120, 184},
		{"yearly rolling", Yearly, day(2023, 4, 15), day(2023, 4, 15), day(2024, 4, 14), 340, 366},
		{"yearly from leap day", Yearly, day(2024, 2, 29), day(2024, 2, 29), day(2025, 2, 28), 340, 366},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ComputePeriod(tc.freq, tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.start, p.Start)
			assert.Equal(t, tc.end, p.End)
			assert.Equal(t, tc.minDays, p.MinimumDaysSinceLastInvoice)
			assert.Equal(t, tc.days, p.Days())
		})
	}
}

func TestComputePeriod_IgnoresTimeOfDay(t *testing.T) {
	p, err := ComputePeriod(Monthly, time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 31), p.End)
	assert.True(t, p.Contains(time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(day(2024, 2, 1)))
}

func TestComputePeriod_UnknownFrequency(t *testing.T) {
	_, err := ComputePeriod(Frequency("weekly"), day(2024, 1, 1))
	assert.True(t, errors.Is(err, ErrUnknownFrequency))
}

func TestParseFrequency(t *testing.T) {
	cases := map[string]Frequency{
		"4":           Monthly,
		"6":           Quarterly,
		"7":           HalfYearly,
		"8":           Yearly,
		"Monthly":     Monthly,
		"Annual":      Yearly,
		"half-yearly": HalfYearly,
		" quarterly ": Quarterly,
	}
	for raw, want := range cases {
		got, err := ParseFrequency(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"5", "weekly", ""} {
		_, err := ParseFrequency(raw)
		assert.ErrorIs(t, err, ErrUnknownFrequency, raw)
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(day(2024, 1, 1), day(2024, 1, 1)))
	assert.Equal(t, 366, DaysBetween(day(2024, 1, 1), day(2025, 1, 1)))
	assert.Equal(t, -1, DaysBetween(day(2024, 1, 2), day(2024, 1, 1)))
}
