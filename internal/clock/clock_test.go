package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToday(t *testing.T) {
	c := Fixed{At: time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)}
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Today(context.Background(), c))
}

func TestDate_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2024, 1, 1, 3, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), Date(local))
}

func TestWithAsOf_OverridesClocks(t *testing.T) {
	pinned := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithAsOf(context.Background(), pinned)

	assert.Equal(t, pinned, SystemClock{}.Now(ctx))
	assert.Equal(t, pinned, Fixed{At: time.Now()}.Now(ctx))
}
