package streamone

import (
	"encoding/json"
	"testing"
	"time"

	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawLines(t *testing.T, payload string) []json.RawMessage {
	t.Helper()
	var lines []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(payload), &lines))
	return lines
}

func TestParseSubscriptions_MergesDuplicateSKUs(t *testing.T) {
	lines := rawLines(t, `[
		{"sku": "X", "name": "First", "quantity": 3, "lineStatus": "active"},
		{"sku": "X", "name": "Second", "quantity": "2", "lineStatus": "inactive"}
	]`)

	qs, err := ParseSubscriptions(lines)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "X", qs[0].ResourceKey)
	assert.True(t, decimal.NewFromInt(5).Equal(qs[0].Quantity))
	assert.Equal(t, "First", qs[0].Name)
	assert.Equal(t, usagedomain.StatusActive, qs[0].Status)
}

func TestParseSubscriptions_UnwrapsSingleKeyWrapper(t *testing.T) {
	lines := rawLines(t, `[
		{"12345": {"sku": "AZ-001", "skuName": "Azure Plan", "quantity": 1, "lineStatus": "Active",
			"createdDate": "2024-01-05T10:00:00Z", "updatedDate": "2024-02-01 08:30:00"}}
	]`)

	qs, err := ParseSubscriptions(lines)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "AZ-001", qs[0].ResourceKey)
	assert.Equal(t, "Azure Plan", qs[0].Name)
	assert.Equal(t, usagedomain.StatusActive, qs[0].Status)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), qs[0].CreatedAt)
	assert.Equal(t, time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC), qs[0].UpdatedAt)
}

func TestParseSubscriptions_FlattensAddOns(t *testing.T) {
	lines := rawLines(t, `[
		{"wrap": {
			"sku": "M365-BP", "quantity": 10, "lineStatus": "active",
			"addOns": [
				{"sku": "DEF-P1", "quantity": 4, "addOnStatus": "inactive",
				 "updatedDate": "2024-03-01T00:00:00Z",
				 "additionalData": {"subscriptionHistory": [
					{"createdOn": "2024-03-02T12:00:00Z", "createdBy": "Kari Nordmann"}
				 ]}},
				{"sku": "M365-BP", "quantity": 2, "addOnStatus": "active"}
			]
		}}
	]`)

	qs, err := ParseSubscriptions(lines)
	require.NoError(t, err)
	require.Len(t, qs, 2)

	assert.Equal(t, "M365-BP", qs[0].ResourceKey)
	assert.True(t, decimal.NewFromInt(12).Equal(qs[0].Quantity))

	assert.Equal(t, "DEF-P1", qs[1].ResourceKey)
	assert.Equal(t, usagedomain.StatusInactive, qs[1].Status)
	require.Len(t, qs[1].History, 1)
	assert.Equal(t, "Kari Nordmann", qs[1].Attribution().ChangedBy)
}

func TestParseSubscriptions_RejectsUnknownShapes(t *testing.T) {
	cases := map[string]string{
		"not an object":       `[42]`,
		"two keys no sku":     `[{"a": {"sku": "X"}, "b": {"sku": "Y"}}]`,
		"wrapper without sku": `[{"a": {"name": "X"}}]`,
		"wrapper scalar":      `[{"a": "X"}]`,
		"bad timestamp":       `[{"sku": "X", "createdDate": "yesterday"}]`,
		"blank sku":           `[{"sku": " ", "quantity": 1}]`,
		"negative quantity":   `[{"sku": "X", "quantity": -1}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSubscriptions(rawLines(t, payload))
			assert.ErrorIs(t, err, usagedomain.ErrSchemaMismatch)
		})
	}
}

func TestMergeBySKU_KeepsFirstSeenOrder(t *testing.T) {
	in := []usagedomain.Quantity{
		{ResourceKey: "B", Quantity: decimal.NewFromInt(1)},
		{ResourceKey: "A", Quantity: decimal.NewFromInt(1)},
		{ResourceKey: "B", Quantity: decimal.NewFromInt(2)},
	}
	out := MergeBySKU(in)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].ResourceKey)
	assert.True(t, decimal.NewFromInt(3).Equal(out[0].Quantity))
	assert.Equal(t, "A", out[1].ResourceKey)
}
