package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics counts dues-engine state changes.
type BillingMetrics struct {
	paymentsRecorded *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	compensations    *prometheus.CounterVec
	sweepActions     *prometheus.CounterVec
}

// NewBillingMetrics registers the billing counters. A nil registerer yields a no-op recorder.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	paymentsRecorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_recorded_total",
		Help:      "Payments written to the ledger.",
	}, []string{"type", "method"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Membership status transitions.",
	}, []string{"from", "to"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payer_compensations_total",
		Help:      "Subscription cancellations issued after a failed payer write.",
	}, []string{"outcome"})
	sweepActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_actions_total",
		Help:      "Overdue sweep actions by kind.",
	}, []string{"action"})
	reg.MustRegister(paymentsRecorded, transitions, compensations, sweepActions)
	return &BillingMetrics{
		paymentsRecorded: paymentsRecorded,
		transitions:      transitions,
		compensations:    compensations,
		sweepActions:     sweepActions,
	}
}

// PaymentRecorded counts one ledger write.
func (b *BillingMetrics) PaymentRecorded(paymentType, method string) {
	if b == nil || b.paymentsRecorded == nil {
		return
	}
	b.paymentsRecorded.WithLabelValues(normalizeLabel(paymentType), normalizeLabel(method)).Inc()
}

// StatusTransition counts a status move; equal states are ignored.
func (b *BillingMetrics) StatusTransition(from, to string) {
	if b == nil || b.transitions == nil || from == to {
		return
	}
	b.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// Compensation counts a rollback cancellation with its outcome (cancelled or failed).
func (b *BillingMetrics) Compensation(outcome string) {
	if b == nil || b.compensations == nil {
		return
	}
	b.compensations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SweepAction adds n to the counter for a sweep action.
func (b *BillingMetrics) SweepAction(action string, n int) {
	if b == nil || b.sweepActions == nil || n <= 0 {
		return
	}
	b.sweepActions.WithLabelValues(normalizeLabel(action)).Add(float64(n))
}
