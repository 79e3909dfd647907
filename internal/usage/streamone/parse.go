package streamone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
)

type historyEntry struct {
	CreatedOn timestamp `json:"createdOn"`
	CreatedBy string    `json:"createdBy"`
}

type additionalData struct {
	SubscriptionHistory []historyEntry `json:"subscriptionHistory"`
}

type lineItem struct {
	SKU                 string          `json:"sku"`
	SKUName             string          `json:"skuName"`
	Name                string          `json:"name"`
	Quantity            decimal.Decimal `json:"quantity"`
	LineStatus          string          `json:"lineStatus"`
	AddOnStatus         string          `json:"addOnStatus"`
	CreatedDate         timestamp       `json:"createdDate"`
	UpdatedDate         timestamp       `json:"updatedDate"`
	SubscriptionHistory []historyEntry  `json:"subscriptionHistory"`
	AdditionalData      *additionalData `json:"additionalData"`
	AddOns              []lineItem      `json:"addOns"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

// ParseSubscriptions turns the raw subscription payload into quantities.
// Each element is either a line item or an object with exactly one key
// wrapping a line item. Add-ons are lifted to top level, then entries are
// merged by SKU.
func ParseSubscriptions(raw []json.RawMessage) ([]usagedomain.Quantity, error) {
	var flat []lineItem
	for i, element := range raw {
		line, err := decodeLine(element)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", usagedomain.ErrSchemaMismatch, i, err)
		}
		flat = flatten(flat, line)
	}

	quantities := make([]usagedomain.Quantity, 0, len(flat))
	for _, line := range flat {
		q, err := toQuantity(line)
		if err != nil {
			return nil, err
		}
		quantities = append(quantities, q)
	}
	return MergeBySKU(quantities), nil
}

func decodeLine(element json.RawMessage) (lineItem, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(element, &fields); err != nil {
		return lineItem{}, fmt.Errorf("not an object: %v", err)
	}

	body := element
	if _, bare := fields["sku"]; !bare {
		if len(fields) != 1 {
			return lineItem{}, fmt.Errorf("expected line item or single-key wrapper, got %d keys", len(fields))
		}
		for _, inner := range fields {
			body = inner
		}
		var innerFields map[string]json.RawMessage
		if err := json.Unmarshal(body, &innerFields); err != nil {
			return lineItem{}, fmt.Errorf("wrapped value is not an object: %v", err)
		}
		if _, ok := innerFields["sku"]; !ok {
			return lineItem{}, fmt.Errorf("wrapped value has no sku")
		}
	}

	var line lineItem
	if err := json.Unmarshal(body, &line); err != nil {
		return lineItem{}, err
	}
	return line, nil
}

// flatten appends line and its add-ons. An add-on takes its status from
// addOnStatus and its history from additionalData.
func flatten(out []lineItem, line lineItem) []lineItem {
	addOns := line.AddOns
	line.AddOns = nil
	out = append(out, line)

	for _, addOn := range addOns {
		addOn.LineStatus = addOn.AddOnStatus
		if addOn.AdditionalData != nil {
			addOn.SubscriptionHistory = addOn.AdditionalData.SubscriptionHistory
		}
		out = flatten(out, addOn)
	}
	return out
}

func toQuantity(line lineItem) (usagedomain.Quantity, error) {
	sku := strings.TrimSpace(line.SKU)
	if sku == "" {
		return usagedomain.Quantity{}, fmt.Errorf("%w: line item without sku", usagedomain.ErrSchemaMismatch)
	}
	if line.Quantity.IsNegative() {
		return usagedomain.Quantity{}, fmt.Errorf("%w: negative quantity for %s", usagedomain.ErrSchemaMismatch, sku)
	}

	name := strings.TrimSpace(line.Name)
	if name == "" {
		name = strings.TrimSpace(line.SKUName)
	}

	history := make([]usagedomain.ChangeEvent, 0, len(line.SubscriptionHistory))
	for _, h := range line.SubscriptionHistory {
		history = append(history, usagedomain.ChangeEvent{
			ChangedAt: h.CreatedOn.Time,
			ChangedBy: strings.TrimSpace(h.CreatedBy),
		})
	}

	return usagedomain.Quantity{
		ResourceKey: sku,
		Name:        name,
		Quantity:    line.Quantity,
		Status:      parseStatus(line.LineStatus),
		CreatedAt:   line.CreatedDate.Time,
		UpdatedAt:   line.UpdatedDate.Time,
		History:     history,
	}, nil
}

func parseStatus(raw string) usagedomain.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return usagedomain.StatusActive
	case "inactive":
		return usagedomain.StatusInactive
	default:
		return usagedomain.StatusUnknown
	}
}

// MergeBySKU sums quantities of entries sharing a SKU. The first entry seen
// for a SKU keeps its other fields and its position.
func MergeBySKU(in []usagedomain.Quantity) []usagedomain.Quantity {
	index := make(map[string]int, len(in))
	out := make([]usagedomain.Quantity, 0, len(in))
	for _, q := range in {
		if i, ok := index[q.ResourceKey]; ok {
			out[i].Quantity = out[i].Quantity.Add(q.Quantity)
			continue
		}
		index[q.ResourceKey] = len(out)
		out = append(out, q)
	}
	return out
}
