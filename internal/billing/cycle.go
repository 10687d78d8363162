package billing

import (
	"time"

	"github.com/angelmondragon/duesengine/pkg/enums"
)

// MaxAnniversaryDay is the largest billing day valid in every month.
const MaxAnniversaryDay = 28

// PeriodMonths returns how many months one billing period spans. Unknown
// frequencies bill monthly.
func PeriodMonths(freq enums.BillingFrequency) int {
	if months := freq.Months(); months > 0 {
		return months
	}
	return 1
}

// NextPaymentDue adds one billing period to from and pins the result to the
// anniversary day, clamped to the length of the target month. A non-positive
// anniversary day falls back to from's day of month.
func NextPaymentDue(from time.Time, freq enums.BillingFrequency, anniversaryDay int) time.Time {
	if anniversaryDay <= 0 {
		anniversaryDay = from.Day()
	}
	firstOfTarget := time.Date(from.Year(), from.Month()+time.Month(PeriodMonths(freq)), 1, 0, 0, 0, 0, from.Location())
	day := min(anniversaryDay, DaysInMonth(firstOfTarget.Year(), firstOfTarget.Month()))
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, from.Location())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampAnniversaryDay keeps a stored anniversary day within 1..28.
func ClampAnniversaryDay(day int) int {
	switch {
	case day < 1:
		return 1
	case day > MaxAnniversaryDay:
		return MaxAnniversaryDay
	default:
		return day
	}
}

// DaysBetween counts whole calendar days from start to end, ignoring time of day.
func DaysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}
