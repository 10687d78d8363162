package enums

import "fmt"

// BillingFrequency is the cadence a membership is billed on.
type BillingFrequency string

const (
	BillingFrequencyMonthly  BillingFrequency = "monthly"
	BillingFrequencyBiannual BillingFrequency = "biannual"
	BillingFrequencyAnnual   BillingFrequency = "annual"
)

var validBillingFrequencies = []BillingFrequency{
	BillingFrequencyMonthly,
	BillingFrequencyBiannual,
	BillingFrequencyAnnual,
}

// String implements fmt.Stringer.
func (v BillingFrequency) String() string {
	return string(v)
}

// IsValid reports whether the value is a known BillingFrequency.
func (v BillingFrequency) IsValid() bool {
	for _, candidate := range validBillingFrequencies {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseBillingFrequency converts raw input into a BillingFrequency.
func ParseBillingFrequency(value string) (BillingFrequency, error) {
	for _, candidate := range validBillingFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing frequency %q", value)
}

// Months returns the number of dues-months one billing period covers.
func (v BillingFrequency) Months() int {
	switch v {
	case BillingFrequencyMonthly:
		return 1
	case BillingFrequencyBiannual:
		return 6
	case BillingFrequencyAnnual:
		return 12
	default:
		return 0
	}
}
