package enums

import "fmt"

// EnrollmentFeeStatus tracks the one-time enrollment fee.
type EnrollmentFeeStatus string

const (
	EnrollmentFeeStatusUnpaid EnrollmentFeeStatus = "unpaid"
	EnrollmentFeeStatusPaid   EnrollmentFeeStatus = "paid"
	EnrollmentFeeStatusWaived EnrollmentFeeStatus = "waived"
)

var validEnrollmentFeeStatuses = []EnrollmentFeeStatus{
	EnrollmentFeeStatusUnpaid,
	EnrollmentFeeStatusPaid,
	EnrollmentFeeStatusWaived,
}

// String implements fmt.Stringer.
func (v EnrollmentFeeStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known EnrollmentFeeStatus.
func (v EnrollmentFeeStatus) IsValid() bool {
	for _, candidate := range validEnrollmentFeeStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseEnrollmentFeeStatus converts raw input into a EnrollmentFeeStatus.
func ParseEnrollmentFeeStatus(value string) (EnrollmentFeeStatus, error) {
	for _, candidate := range validEnrollmentFeeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enrollment fee status %q", value)
}

// IsSettled reports whether the fee no longer blocks progression out of pending.
func (v EnrollmentFeeStatus) IsSettled() bool {
	return v == EnrollmentFeeStatusPaid || v == EnrollmentFeeStatusWaived
}
