package billing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/duesengine/pkg/enums"
)

const (
	// StripePercentBps and StripeFixedCents describe the processor's card pricing.
	StripePercentBps = 290
	StripeFixedCents = 30

	bpsDenominator = 10000
)

// FeePolicy is the organization's fee configuration.
type FeePolicy struct {
	PassFeesToMember bool
	PlatformFeeBps   int
}

// Fees is the fee breakdown stored on a payment. All values are cents.
type Fees struct {
	Amount       int64 `json:"amount_cents"`
	StripeFee    int64 `json:"stripe_fee_cents"`
	PlatformFee  int64 `json:"platform_fee_cents"`
	TotalCharged int64 `json:"total_charged_cents"`
	NetAmount    int64 `json:"net_amount_cents"`
}

// CalculateFees derives the fee fields for a payment of amount cents.
//
// Manual methods carry no fees. Processor payments take the platform cut and
// the card fee; when the organization passes fees to the member the charge is
// grossed up so the organization nets the full amount.
func CalculateFees(amount int64, method enums.PaymentMethod, policy FeePolicy) Fees {
	if method.IsManual() {
		return Fees{Amount: amount, TotalCharged: amount, NetAmount: amount}
	}

	amt := decimal.NewFromInt(amount)
	platform := amt.Mul(decimal.NewFromInt(int64(policy.PlatformFeeBps))).
		Div(decimal.NewFromInt(bpsDenominator)).
		Round(0)
	fixed := decimal.NewFromInt(StripeFixedCents)
	rate := decimal.NewFromInt(StripePercentBps).Div(decimal.NewFromInt(bpsDenominator))

	if policy.PassFeesToMember {
		total := amt.Add(platform).Add(fixed).
			Div(decimal.NewFromInt(1).Sub(rate)).
			Ceil()
		return Fees{
			Amount:       amount,
			StripeFee:    total.Sub(amt).Sub(platform).IntPart(),
			PlatformFee:  platform.IntPart(),
			TotalCharged: total.IntPart(),
			NetAmount:    amount,
		}
	}

	stripeFee := amt.Mul(rate).Round(0).Add(fixed)
	return Fees{
		Amount:       amount,
		StripeFee:    stripeFee.IntPart(),
		PlatformFee:  platform.IntPart(),
		TotalCharged: amount,
		NetAmount:    amt.Sub(stripeFee).Sub(platform).IntPart(),
	}
}
