package domain

import (
	"errors"
	"strconv"
	"strings"
)

var ErrUnknownFrequency = errors.New("unknown_payment_frequency")

// Frequency is how often a subscription is invoiced.
type Frequency string

const (
	Monthly    Frequency = "monthly"
	Quarterly  Frequency = "quarterly"
	HalfYearly Frequency = "half-yearly"
	Yearly     Frequency = "yearly"
)

// legacyFrequencyIDs are the numeric payment frequency ids used by the
// accounting system the ledger was imported from.
var legacyFrequencyIDs = map[int]Frequency{
	4: Monthly,
	6: Quarterly,
	7: HalfYearly,
	8: Yearly,
}

func (f Frequency) Valid() bool {
	switch f {
	case Monthly, Quarterly, HalfYearly, Yearly:
		return true
	}
	return false
}

func (f Frequency) String() string {
	return string(f)
}

// ParseFrequency accepts enum names, legacy numeric ids and provider billing
// types such as "Monthly" or "Annual".
func ParseFrequency(raw string) (Frequency, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if id, err := strconv.Atoi(value); err == nil {
		if f, ok := legacyFrequencyIDs[id]; ok {
			return f, nil
		}
		return "", ErrUnknownFrequency
	}

	switch value {
	case "monthly", "month":
		return Monthly, nil
	case "quarterly", "quarter":
		return Quarterly, nil
	case "half-yearly", "half_yearly", "halfyearly", "semiannual", "semi-annual":
		return HalfYearly, nil
	case "yearly", "annual", "annually", "year":
		return Yearly, nil
	}
	return "", ErrUnknownFrequency
}
