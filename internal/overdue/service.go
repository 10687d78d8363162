// Package overdue runs the nightly sweep that invoices past-due memberships,
// lapses and cancels them, and escalates payment reminders.
package overdue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/internal/billing"
	"github.com/angelmondragon/duesengine/internal/members"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/organizations"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/internal/subscriptions"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	StatusChanged(ctx context.Context, member models.Member, from, to enums.MembershipStatus) bool
	PaymentReminder(ctx context.Context, member models.Member, payment models.Payment, reminderNumber int) bool
}

var errSkipped = errors.New("no longer eligible")

// Service runs the overdue sweep.
type Service interface {
	Sweep(ctx context.Context, asOf time.Time) (*SweepResult, error)
}

// ServiceParams groups dependencies for the sweep.
type ServiceParams struct {
	Policy            config.BillingConfig
	MembershipRepo    memberships.Repository
	PaymentRepo       payments.Repository
	MemberRepo        members.Repository
	OrganizationRepo  organizations.Repository
	Processor         subscriptions.Processor
	TransactionRunner txRunner
	Notifier          notifier
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
}

type service struct {
	policy      config.BillingConfig
	memberships memberships.Repository
	payments    payments.Repository
	members     members.Repository
	orgs        organizations.Repository
	processor   subscriptions.Processor
	txRunner    txRunner
	notifier    notifier
	metrics     *metrics.BillingMetrics
	logg        *logger.Logger
}

// NewService builds the sweep. Processor and Notifier are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.MembershipRepo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if params.PaymentRepo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.MemberRepo == nil {
		return nil, fmt.Errorf("member repository required")
	}
	if params.OrganizationRepo == nil {
		return nil, fmt.Errorf("organization repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	policy := params.Policy
	if policy.LapseDays <= 0 || policy.CancelMonths <= 0 {
		return nil, fmt.Errorf("lapse days and cancel months must be positive")
	}
	if policy.SweepBatchSize <= 0 {
		policy.SweepBatchSize = 200
	}
	return &service{
		policy:      policy,
		memberships: params.MembershipRepo,
		payments:    params.PaymentRepo,
		members:     params.MemberRepo,
		orgs:        params.OrganizationRepo,
		processor:   params.Processor,
		txRunner:    params.TransactionRunner,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// Sweep walks every organization. A failing membership or organization is
// recorded in the result and the sweep moves on; only failing to list
// organizations aborts.
func (s *service) Sweep(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	asOf = endOfDay(asOf)
	result := newResult(dateOf(asOf))

	var (
		after uuid.UUID
		errs  error
	)
	for {
		ids, err := s.orgs.ListIDs(ctx, after, s.policy.SweepBatchSize)
		if err != nil {
			return result, fmt.Errorf("list organizations: %w", err)
		}
		for _, orgID := range ids {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Organizations++
			errs = multierr.Append(errs, s.sweepOrganization(ctx, orgID, asOf, result))
		}
		if len(ids) < s.policy.SweepBatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	s.metrics.SweepAction(string(StepInvoice), len(result.Invoiced))
	s.metrics.SweepAction(string(StepLapse), len(result.Transitioned))
	s.metrics.SweepAction(string(StepRemind), len(result.Reminded))
	s.metrics.SweepAction(string(StepFlag), len(result.Flagged))
	s.metrics.SweepAction(string(StepCancel), len(result.Cancelled))

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"as_of":         asOf.Format(time.DateOnly),
			"organizations": result.Organizations,
			"processed":     result.Processed,
			"invoiced":      len(result.Invoiced),
			"lapsed":        len(result.Transitioned),
			"reminded":      len(result.Reminded),
			"flagged":       len(result.Flagged),
			"cancelled":     len(result.Cancelled),
			"failures":      len(result.Failures),
		})
		if errs != nil {
			s.logg.Error(logCtx, "overdue sweep finished with failures", errs)
		} else {
			s.logg.Info(logCtx, "overdue sweep finished")
		}
	}
	return result, nil
}

func (s *service) sweepOrganization(ctx context.Context, orgID uuid.UUID, asOf time.Time, result *SweepResult) error {
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil || org == nil {
		if err == nil {
			err = errors.New("organization disappeared")
		}
		result.fail(orgID, nil, nil, StepList, err)
		return err
	}

	var errs error
	errs = multierr.Append(errs, s.invoiceDue(ctx, *org, asOf, result))
	errs = multierr.Append(errs, s.lapseOverdue(ctx, orgID, asOf, result))
	errs = multierr.Append(errs, s.escalateReminders(ctx, orgID, asOf, result))
	errs = multierr.Append(errs, s.cancelAbandoned(ctx, orgID, asOf, result))
	return errs
}

// eachMembership pages a membership listing and applies fn to every row.
func (s *service) eachMembership(
	ctx context.Context,
	orgID uuid.UUID,
	step Step,
	result *SweepResult,
	list func(after uuid.UUID, limit int) ([]models.Membership, error),
	fn func(models.Membership) error,
) error {
	var (
		after uuid.UUID
		errs  error
	)
	for {
		rows, err := list(after, s.policy.SweepBatchSize)
		if err != nil {
			result.fail(orgID, nil, nil, StepList, err)
			return multierr.Append(errs, fmt.Errorf("%s: list memberships: %w", step, err))
		}
		for _, m := range rows {
			result.Processed++
			if err := fn(m); err != nil {
				if errors.Is(err, errSkipped) {
					continue
				}
				id := m.ID
				result.fail(orgID, &id, nil, step, err)
				errs = multierr.Append(errs, fmt.Errorf("%s membership %s: %w", step, m.ID, err))
				s.warn(ctx, m.ID, fmt.Sprintf("overdue %s failed", step), err)
			}
		}
		if len(rows) < s.policy.SweepBatchSize {
			return errs
		}
		after = rows[len(rows)-1].ID
	}
}

// invoiceDue opens a pending dues payment for each past-due membership that
// pays by hand and has nothing open.
func (s *service) invoiceDue(ctx context.Context, org models.Organization, asOf time.Time, result *SweepResult) error {
	list := func(after uuid.UUID, limit int) ([]models.Membership, error) {
		return s.memberships.ListNeedingInvoice(ctx, org.ID, asOf, after, limit)
	}
	return s.eachMembership(ctx, org.ID, StepInvoice, result, list, func(m models.Membership) error {
		var invoice *models.Payment
		err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			locked, err := s.memberships.WithTx(tx).FindForUpdate(ctx, org.ID, m.ID)
			if err != nil {
				return err
			}
			if locked == nil || locked.AutoPayEnabled || locked.NextPaymentDue == nil || locked.Status == enums.MembershipStatusCancelled {
				return errSkipped
			}
			paymentRepo := s.payments.WithTx(tx)
			open, err := paymentRepo.ListOpenDues(ctx, org.ID, m.ID)
			if err != nil {
				return err
			}
			if len(open) > 0 {
				return errSkipped
			}
			plan, err := s.orgs.WithTx(tx).FindPlan(ctx, org.ID, locked.PlanID)
			if err != nil {
				return err
			}
			if plan == nil {
				return errors.New("plan not found")
			}
			invoice = newDuesInvoice(org, *plan, *locked)
			return paymentRepo.Create(ctx, invoice)
		})
		if err != nil {
			return err
		}
		result.Invoiced = append(result.Invoiced, invoice.ID)
		return nil
	})
}

func newDuesInvoice(org models.Organization, plan models.Plan, m models.Membership) *models.Payment {
	months := billing.PeriodMonths(m.BillingFrequency)
	amount := billing.ExpectedAmount(plan, enums.PaymentTypeDues, m.BillingFrequency, months)
	fees := billing.CalculateFees(amount, enums.PaymentMethodStripe, organizations.FeePolicy(org))
	memberID := m.MemberID
	if m.PayerMemberID != nil {
		memberID = *m.PayerMemberID
	}
	due := *m.NextPaymentDue
	return &models.Payment{
		OrganizationID:    org.ID,
		MembershipID:      m.ID,
		MemberID:          memberID,
		Type:              enums.PaymentTypeDues,
		Method:            enums.PaymentMethodStripe,
		Status:            enums.PaymentStatusPending,
		AmountCents:       amount,
		StripeFeeCents:    fees.StripeFee,
		PlatformFeeCents:  fees.PlatformFee,
		TotalChargedCents: fees.TotalCharged,
		NetAmountCents:    fees.NetAmount,
		MonthsCredited:    months,
		DueDate:           &due,
	}
}

// lapseOverdue is the only path into lapsed.
func (s *service) lapseOverdue(ctx context.Context, orgID uuid.UUID, asOf time.Time, result *SweepResult) error {
	cutoff := asOf.AddDate(0, 0, -s.policy.LapseDays)
	list := func(after uuid.UUID, limit int) ([]models.Membership, error) {
		return s.memberships.ListLapseCandidates(ctx, orgID, cutoff, after, limit)
	}
	return s.eachMembership(ctx, orgID, StepLapse, result, list, func(m models.Membership) error {
		var previous enums.MembershipStatus
		err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.memberships.WithTx(tx)
			locked, err := repo.FindForUpdate(ctx, orgID, m.ID)
			if err != nil {
				return err
			}
			if locked == nil || !lapsable(*locked, asOf, s.policy.LapseDays) {
				return errSkipped
			}
			previous = locked.Status
			locked.Status = enums.MembershipStatusLapsed
			return repo.Save(ctx, locked)
		})
		if err != nil {
			return err
		}
		result.Transitioned = append(result.Transitioned, m.ID)
		s.metrics.StatusTransition(string(previous), string(enums.MembershipStatusLapsed))
		s.notifyStatus(ctx, m, previous, enums.MembershipStatusLapsed)
		return nil
	})
}

func lapsable(m models.Membership, asOf time.Time, lapseDays int) bool {
	if m.Status != enums.MembershipStatusWaitingPeriod && m.Status != enums.MembershipStatusActive {
		return false
	}
	return m.NextPaymentDue != nil && billing.DaysBetween(*m.NextPaymentDue, asOf) >= lapseDays
}

// escalateReminders sends the next scheduled reminder for each open invoice,
// and flags invoices that have used every reminder for review.
func (s *service) escalateReminders(ctx context.Context, orgID uuid.UUID, asOf time.Time, result *SweepResult) error {
	limit := s.reminderLimit()
	var (
		after uuid.UUID
		errs  error
	)
	for {
		rows, err := s.payments.ListReminderCandidates(ctx, orgID, asOf, after, s.policy.SweepBatchSize)
		if err != nil {
			result.fail(orgID, nil, nil, StepList, err)
			return multierr.Append(errs, fmt.Errorf("remind: list payments: %w", err))
		}
		for _, p := range rows {
			result.Processed++
			step := StepRemind
			var err error
			if p.ReminderCount >= limit {
				step = StepFlag
				err = s.flag(ctx, p, asOf, result)
			} else {
				err = s.remind(ctx, p, asOf, result)
			}
			if err != nil && !errors.Is(err, errSkipped) {
				id, membershipID := p.ID, p.MembershipID
				result.fail(orgID, &membershipID, &id, step, err)
				errs = multierr.Append(errs, fmt.Errorf("%s payment %s: %w", step, p.ID, err))
				s.warn(ctx, p.MembershipID, fmt.Sprintf("overdue %s failed", step), err)
			}
		}
		if len(rows) < s.policy.SweepBatchSize {
			return errs
		}
		after = rows[len(rows)-1].ID
	}
}

// reminderLimit caps reminders at the schedule length.
func (s *service) reminderLimit() int {
	limit := s.policy.MaxReminders
	if n := len(s.policy.ReminderOffsetsDays); n < limit {
		limit = n
	}
	return limit
}

// flag marks an invoice for review on a sweep after its last reminder went
// out, never on the same day.
func (s *service) flag(ctx context.Context, p models.Payment, asOf time.Time, result *SweepResult) error {
	if p.ReminderSentAt != nil && !p.ReminderSentAt.Before(dateOf(asOf)) {
		return errSkipped
	}
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, p.OrganizationID, p.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != enums.PaymentStatusPending || locked.RequiresReview {
			return errSkipped
		}
		locked.RequiresReview = true
		return repo.Update(ctx, locked)
	})
	if err != nil {
		return err
	}
	result.Flagged = append(result.Flagged, p.ID)
	return nil
}

func (s *service) remind(ctx context.Context, p models.Payment, asOf time.Time, result *SweepResult) error {
	if p.DueDate == nil {
		return errSkipped
	}
	offset := s.policy.ReminderOffsetsDays[p.ReminderCount]
	if billing.DaysBetween(*p.DueDate, asOf) < offset {
		return errSkipped
	}
	if p.ReminderSentAt != nil && billing.DaysBetween(*p.ReminderSentAt, asOf) == 0 {
		return errSkipped
	}
	if s.notifier == nil {
		return errSkipped
	}
	member, err := s.members.FindByID(ctx, p.OrganizationID, p.MemberID)
	if err != nil {
		return err
	}
	if member == nil {
		return errors.New("member not found")
	}

	number := p.ReminderCount + 1
	if !s.notifier.PaymentReminder(ctx, *member, p, number) {
		// count only delivered reminders; the next sweep retries
		return errSkipped
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, p.OrganizationID, p.ID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != enums.PaymentStatusPending {
			return errSkipped
		}
		sentAt := dateOf(asOf)
		locked.ReminderCount = number
		locked.ReminderSentAt = &sentAt
		return repo.Update(ctx, locked)
	})
	if err != nil {
		return err
	}
	result.Reminded = append(result.Reminded, p.ID)
	return nil
}

// cancelAbandoned cancels lapsed memberships with nothing paid for
// CancelMonths. The processor subscription is cancelled first, best-effort;
// if that fails the subscription fields stay so it can be retried by hand.
func (s *service) cancelAbandoned(ctx context.Context, orgID uuid.UUID, asOf time.Time, result *SweepResult) error {
	unpaidSince := asOf.AddDate(0, -s.policy.CancelMonths, 0)
	list := func(after uuid.UUID, limit int) ([]models.Membership, error) {
		return s.memberships.ListCancelCandidates(ctx, orgID, unpaidSince, after, limit)
	}
	return s.eachMembership(ctx, orgID, StepCancel, result, list, func(m models.Membership) error {
		subscriptionGone := true
		if m.StripeSubscriptionID != nil && s.processor != nil {
			err := s.processor.CancelSubscription(ctx, *m.StripeSubscriptionID)
			if err != nil && !errors.Is(err, subscriptions.ErrSubscriptionNotFound) {
				subscriptionGone = false
				id := m.ID
				result.fail(orgID, &id, nil, StepSubscription, err)
				s.warn(ctx, m.ID, "subscription cancel failed during sweep", err)
			}
		} else if m.StripeSubscriptionID != nil {
			subscriptionGone = false
		}

		err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.memberships.WithTx(tx)
			locked, err := repo.FindForUpdate(ctx, orgID, m.ID)
			if err != nil {
				return err
			}
			if locked == nil || locked.Status != enums.MembershipStatusLapsed {
				return errSkipped
			}
			locked.Status = enums.MembershipStatusCancelled
			if locked.CancelledDate == nil {
				cancelled := dateOf(asOf)
				locked.CancelledDate = &cancelled
			}
			if subscriptionGone && locked.StripeSubscriptionID != nil {
				canceled := enums.SubscriptionStatusCanceled
				locked.StripeSubscriptionID = nil
				locked.AutoPayEnabled = false
				locked.SubscriptionStatus = &canceled
			}
			return repo.Save(ctx, locked)
		})
		if err != nil {
			return err
		}
		result.Cancelled = append(result.Cancelled, m.ID)
		s.metrics.StatusTransition(string(enums.MembershipStatusLapsed), string(enums.MembershipStatusCancelled))
		s.notifyStatus(ctx, m, enums.MembershipStatusLapsed, enums.MembershipStatusCancelled)
		return nil
	})
}

func (s *service) notifyStatus(ctx context.Context, m models.Membership, from, to enums.MembershipStatus) {
	if s.notifier == nil {
		return
	}
	member, err := s.members.FindByID(ctx, m.OrganizationID, m.MemberID)
	if err != nil || member == nil {
		s.warn(ctx, m.ID, "status notification skipped", err)
		return
	}
	s.notifier.StatusChanged(ctx, *member, from, to)
}

func (s *service) warn(ctx context.Context, membershipID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithMembershipID(ctx, membershipID.String())
	if err != nil {
		logCtx = s.logg.WithField(logCtx, "error", err.Error())
	}
	s.logg.Warn(logCtx, msg)
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// endOfDay pins asOf to the last instant of its UTC date so anything due that
// day is included.
func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
