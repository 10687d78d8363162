package memberships

import (
	"testing"
	"time"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

func TestNextStatus(t *testing.T) {
	const threshold = 60
	tests := []struct {
		name       string
		current    enums.MembershipStatus
		paidMonths int
		feeSettled bool
		want       enums.MembershipStatus
	}{
		{name: "unpaid fee freezes pending", current: enums.MembershipStatusPending, paidMonths: 12, want: enums.MembershipStatusPending},
		{name: "unpaid fee freezes waiting at threshold", current: enums.MembershipStatusWaitingPeriod, paidMonths: 61, want: enums.MembershipStatusWaitingPeriod},
		{name: "pending without months stays", current: enums.MembershipStatusPending, paidMonths: 0, feeSettled: true, want: enums.MembershipStatusPending},
		{name: "pending starts waiting period", current: enums.MembershipStatusPending, paidMonths: 1, feeSettled: true, want: enums.MembershipStatusWaitingPeriod},
		{name: "pending straight to active", current: enums.MembershipStatusPending, paidMonths: 60, feeSettled: true, want: enums.MembershipStatusActive},
		{name: "waiting below threshold", current: enums.MembershipStatusWaitingPeriod, paidMonths: 59, feeSettled: true, want: enums.MembershipStatusWaitingPeriod},
		{name: "waiting reaches threshold", current: enums.MembershipStatusWaitingPeriod, paidMonths: 60, feeSettled: true, want: enums.MembershipStatusActive},
		{name: "lapsed reinstates to waiting", current: enums.MembershipStatusLapsed, paidMonths: 40, feeSettled: true, want: enums.MembershipStatusWaitingPeriod},
		{name: "lapsed reinstates to active", current: enums.MembershipStatusLapsed, paidMonths: 60, feeSettled: true, want: enums.MembershipStatusActive},
		{name: "active is sticky", current: enums.MembershipStatusActive, paidMonths: 70, feeSettled: true, want: enums.MembershipStatusActive},
		{name: "cancelled is absorbing", current: enums.MembershipStatusCancelled, paidMonths: 100, feeSettled: true, want: enums.MembershipStatusCancelled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextStatus(tc.current, tc.paidMonths, tc.feeSettled, threshold); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNextStatusNeverEntersLapsedOrCancelled(t *testing.T) {
	statuses := []enums.MembershipStatus{
		enums.MembershipStatusPending,
		enums.MembershipStatusWaitingPeriod,
		enums.MembershipStatusActive,
	}
	for _, status := range statuses {
		for months := 0; months <= 80; months += 5 {
			for _, fee := range []bool{true, false} {
				got := NextStatus(status, months, fee, 60)
				if got == enums.MembershipStatusLapsed || got == enums.MembershipStatusCancelled {
					t.Fatalf("%s with %d months moved to %s", status, months, got)
				}
			}
		}
	}
}

func TestNextStatusDefaultsThreshold(t *testing.T) {
	if got := NextStatus(enums.MembershipStatusWaitingPeriod, 60, true, 0); got != enums.MembershipStatusActive {
		t.Fatalf("expected default threshold of 60 to apply, got %s", got)
	}
}

func TestDisplayLabel(t *testing.T) {
	signed := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := DisplayLabel(models.Membership{Status: enums.MembershipStatusPending}); got != "awaiting_signature" {
		t.Fatalf("expected awaiting_signature, got %s", got)
	}
	if got := DisplayLabel(models.Membership{Status: enums.MembershipStatusPending, AgreementSignedAt: &signed}); got != "pending" {
		t.Fatalf("expected pending, got %s", got)
	}
	if got := DisplayLabel(models.Membership{Status: enums.MembershipStatusLapsed}); got != "lapsed" {
		t.Fatalf("expected lapsed, got %s", got)
	}
}
