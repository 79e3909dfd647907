package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuantity_Attribution(t *testing.T) {
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	q := Quantity{
		UpdatedAt: updated,
		History: []ChangeEvent{
			{ChangedAt: updated.Add(-time.Hour), ChangedBy: "Early Bird"},
			{ChangedAt: updated.Add(2 * time.Hour), ChangedBy: "Kari Nordmann"},
			{ChangedAt: updated.Add(time.Hour), ChangedBy: "Ola Nordmann"},
		},
	}

	got := q.Attribution()
	assert.Equal(t, "Kari Nordmann", got.ChangedBy)
	assert.Equal(t, updated.Add(2*time.Hour), got.ChangedAt)
}

func TestQuantity_AttributionWithoutHistory(t *testing.T) {
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	got := Quantity{UpdatedAt: updated}.Attribution()

	assert.Empty(t, got.ChangedBy)
	assert.Equal(t, updated, got.ChangedAt)
}
