package billing

import (
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// ExpectedAmount prices a payment from the plan. Whole periods use the
// period price; any other month count uses the monthly rate.
func ExpectedAmount(plan models.Plan, paymentType enums.PaymentType, freq enums.BillingFrequency, months int) int64 {
	if paymentType == enums.PaymentTypeEnrollmentFee {
		return plan.EnrollmentFeeCents
	}
	if months <= 0 {
		return 0
	}
	period := PeriodMonths(freq)
	if months%period == 0 {
		if price := plan.DuesFor(freq); price > 0 {
			return price * int64(months/period)
		}
	}
	return plan.MonthlyDuesCents * int64(months)
}
