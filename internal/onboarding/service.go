// Package onboarding collects a new member's first dues and enrollment fee
// through an invite, as a saga of retryable steps.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/internal/billing"
	"github.com/angelmondragon/duesengine/internal/members"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/organizations"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/internal/subscriptions"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

const defaultInviteTTL = 14 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inviteNotifier interface {
	OnboardingInvite(ctx context.Context, member models.Member, invite models.OnboardingInvite) bool
}

// Service runs the onboarding saga.
type Service interface {
	Start(ctx context.Context, input StartInput) (*Result, error)
	RetryStep(ctx context.Context, orgID, inviteID uuid.UUID, step enums.OnboardingStep) (*Result, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*MarkPaidResult, error)
	CompleteCheckout(ctx context.Context, orgID, inviteID uuid.UUID, paymentIntentID string) (*MarkPaidResult, error)
	ExpireInvites(ctx context.Context, now time.Time) (int, error)
}

// ServiceParams groups dependencies for the onboarding service.
type ServiceParams struct {
	Repo              Repository
	PaymentRepo       payments.Repository
	Payments          payments.Service
	MembershipRepo    memberships.Repository
	MemberRepo        members.Repository
	OrganizationRepo  organizations.Repository
	Processor         subscriptions.Processor
	TransactionRunner txRunner
	Notifier          inviteNotifier
	Logger            *logger.Logger
	PublicURL         string
	InviteTTL         time.Duration
	Now               func() time.Time
}

type service struct {
	repo        Repository
	paymentRepo payments.Repository
	payments    payments.Service
	memberships memberships.Repository
	members     members.Repository
	orgs        organizations.Repository
	processor   subscriptions.Processor
	txRunner    txRunner
	notifier    inviteNotifier
	logg        *logger.Logger
	publicURL   string
	inviteTTL   time.Duration
	now         func() time.Time
}

// NewService builds the onboarding service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("invite repository required")
	}
	if params.PaymentRepo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if params.MembershipRepo == nil {
		return nil, fmt.Errorf("membership repository required")
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
	ttl := params.InviteTTL
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		paymentRepo: params.PaymentRepo,
		payments:    params.Payments,
		memberships: params.MembershipRepo,
		members:     params.MemberRepo,
		orgs:        params.OrganizationRepo,
		processor:   params.Processor,
		txRunner:    params.TransactionRunner,
		notifier:    params.Notifier,
		logg:        params.Logger,
		publicURL:   strings.TrimRight(params.PublicURL, "/"),
		inviteTTL:   ttl,
		now:         now,
	}, nil
}

// Start creates the invite and its pending payments, then runs payment setup
// and the email. Only a failed create_invite returns an error; later step
// failures are reported in the result for RetryStep.
func (s *service) Start(ctx context.Context, input StartInput) (*Result, error) {
	if input.OrganizationID == uuid.Nil || input.MembershipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization and membership are required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid onboarding method %q", input.Method))
	}
	if input.Method == enums.OnboardingMethodStripe && s.processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured")
	}

	invite, err := s.createInvite(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &Result{Steps: []StepResult{{Step: enums.OnboardingStepCreateInvite, Status: StepSucceeded}}}
	setup := s.paymentSetup(ctx, invite)
	result.Steps = append(result.Steps, setup)
	if setup.Status == StepFailed {
		result.Steps = append(result.Steps, StepResult{
			Step:   enums.OnboardingStepSendEmail,
			Status: StepSkipped,
			Error:  "payment setup incomplete",
		})
	} else {
		result.Steps = append(result.Steps, s.sendEmail(ctx, invite))
	}
	result.Invite = NewInviteView(*invite)

	if s.logg != nil {
		logCtx := s.logg.WithMembershipID(ctx, input.MembershipID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"invite_id": invite.ID.String(), "method": input.Method, "steps": result.Steps})
		if result.Failed() {
			s.logg.Warn(logCtx, "onboarding started with failed steps")
		} else {
			s.logg.Info(logCtx, "onboarding started")
		}
	}
	return result, nil
}

func (s *service) createInvite(ctx context.Context, input StartInput) (*models.OnboardingInvite, error) {
	var invite *models.OnboardingInvite
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		m, err := s.memberships.WithTx(tx).FindForUpdate(ctx, input.OrganizationID, input.MembershipID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
		}
		if m == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		if m.Status == enums.MembershipStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "membership is cancelled")
		}
		repo := s.repo.WithTx(tx)
		open, err := repo.FindPendingByMembership(ctx, input.OrganizationID, m.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invite")
		}
		if open != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "membership already has a pending invite").
				WithDetails(map[string]string{"invite_id": open.ID.String()})
		}

		orgRepo := s.orgs.WithTx(tx)
		org, err := orgRepo.FindByID(ctx, input.OrganizationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
		}
		if org == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		plan, err := orgRepo.FindPlan(ctx, input.OrganizationID, m.PlanID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
		}
		if plan == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}

		months := billing.PeriodMonths(m.BillingFrequency)
		duesAmount := billing.ExpectedAmount(*plan, enums.PaymentTypeDues, m.BillingFrequency, months)
		if duesAmount <= 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("plan has no %s price", m.BillingFrequency))
		}
		includeFee := input.IncludeEnrollmentFee &&
			m.EnrollmentFeeStatus == enums.EnrollmentFeeStatusUnpaid &&
			plan.EnrollmentFeeCents > 0

		now := s.now().UTC()
		method := pendingMethod(input.Method)
		policy := organizations.FeePolicy(*org)
		paymentRepo := s.paymentRepo.WithTx(tx)

		due := now
		if m.NextPaymentDue != nil {
			due = *m.NextPaymentDue
		}
		dues := pendingPayment(*m, enums.PaymentTypeDues, method, duesAmount, months, policy)
		dues.DueDate = &due
		if err := paymentRepo.Create(ctx, dues); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create dues payment")
		}

		invite = &models.OnboardingInvite{
			OrganizationID:  m.OrganizationID,
			MembershipID:    m.ID,
			MemberID:        m.MemberID,
			Method:          input.Method,
			Status:          enums.OnboardingInviteStatusPending,
			DuesAmountCents: duesAmount,
			DuesPaymentID:   &dues.ID,
			ExpiresAt:       now.Add(s.inviteTTL),
		}
		if includeFee {
			fee := pendingPayment(*m, enums.PaymentTypeEnrollmentFee, method, plan.EnrollmentFeeCents, 0, policy)
			if err := paymentRepo.Create(ctx, fee); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create enrollment fee payment")
			}
			invite.IncludesEnrollmentFee = true
			invite.EnrollmentFeeAmountCents = plan.EnrollmentFeeCents
			invite.EnrollmentFeePaymentID = &fee.ID
		}
		if err := repo.Create(ctx, invite); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create invite")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invite, nil
}

// pendingMethod is the placeholder method on pending rows; settlement
// overwrites it with the method actually used.
func pendingMethod(method enums.OnboardingMethod) enums.PaymentMethod {
	if method == enums.OnboardingMethodStripe {
		return enums.PaymentMethodStripe
	}
	return enums.PaymentMethodCash
}

func pendingPayment(m models.Membership, paymentType enums.PaymentType, method enums.PaymentMethod, amount int64, months int, policy billing.FeePolicy) *models.Payment {
	fees := billing.CalculateFees(amount, method, policy)
	return &models.Payment{
		OrganizationID:    m.OrganizationID,
		MembershipID:      m.ID,
		MemberID:          m.MemberID,
		Type:              paymentType,
		Method:            method,
		Status:            enums.PaymentStatusPending,
		AmountCents:       amount,
		StripeFeeCents:    fees.StripeFee,
		PlatformFeeCents:  fees.PlatformFee,
		TotalChargedCents: fees.TotalCharged,
		NetAmountCents:    fees.NetAmount,
		MonthsCredited:    months,
	}
}

// paymentSetup creates the hosted checkout for stripe invites. Manual invites
// skip it. A URL already on the invite is reused.
func (s *service) paymentSetup(ctx context.Context, invite *models.OnboardingInvite) StepResult {
	step := StepResult{Step: enums.OnboardingStepPaymentSetup}
	if invite.Method != enums.OnboardingMethodStripe {
		step.Status = StepSkipped
		return step
	}
	if invite.SetupURL != nil {
		step.Status = StepSucceeded
		return step
	}
	if err := s.createCheckout(ctx, invite); err != nil {
		s.warn(ctx, invite, "onboarding payment setup failed", err)
		step.Status = StepFailed
		step.Error = err.Error()
		return step
	}
	step.Status = StepSucceeded
	return step
}

func (s *service) createCheckout(ctx context.Context, invite *models.OnboardingInvite) error {
	if s.processor == nil {
		return errors.New("payment processor not configured")
	}
	member, err := s.members.FindByID(ctx, invite.OrganizationID, invite.MemberID)
	if err != nil {
		return err
	}
	if member == nil {
		return errors.New("member not found")
	}
	org, err := s.orgs.FindByID(ctx, invite.OrganizationID)
	if err != nil {
		return err
	}
	if org == nil {
		return errors.New("organization not found")
	}

	if member.StripeCustomerID == nil || *member.StripeCustomerID == "" {
		customerID, err := s.processor.CreateCustomer(ctx, subscriptions.CustomerParams{
			Email: member.Email,
			Name:  member.FullName(),
			Metadata: map[string]string{
				"organization_id": member.OrganizationID.String(),
				"member_id":       member.ID.String(),
			},
		})
		if err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		member.StripeCustomerID = &customerID
		if err := s.members.UpdateProcessorRefs(ctx, member); err != nil {
			return fmt.Errorf("save customer: %w", err)
		}
	}

	policy := organizations.FeePolicy(*org)
	items := []subscriptions.LineItem{{
		Name:        "Membership dues",
		AmountCents: billing.CalculateFees(invite.DuesAmountCents, enums.PaymentMethodStripe, policy).TotalCharged,
	}}
	if invite.IncludesEnrollmentFee {
		items = append(items, subscriptions.LineItem{
			Name:        "Enrollment fee",
			AmountCents: billing.CalculateFees(invite.EnrollmentFeeAmountCents, enums.PaymentMethodStripe, policy).TotalCharged,
		})
	}

	session, err := s.processor.CreatePaymentSession(ctx, subscriptions.PaymentSessionParams{
		CustomerID:    *member.StripeCustomerID,
		CustomerEmail: member.Email,
		LineItems:     items,
		SuccessURL:    s.publicURL + "/onboarding/complete",
		CancelURL:     s.publicURL + "/onboarding/cancelled",
		Metadata: map[string]string{
			"organization_id": invite.OrganizationID.String(),
			"membership_id":   invite.MembershipID.String(),
			"invite_id":       invite.ID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("create checkout session: %w", err)
	}

	url := session.URL
	invite.SetupURL = &url
	if err := s.repo.Update(ctx, invite); err != nil {
		return fmt.Errorf("save setup url: %w", err)
	}
	return nil
}

func (s *service) sendEmail(ctx context.Context, invite *models.OnboardingInvite) StepResult {
	step := StepResult{Step: enums.OnboardingStepSendEmail}
	if invite.Method == enums.OnboardingMethodStripe && invite.SetupURL == nil {
		step.Status = StepFailed
		step.Error = "payment setup incomplete"
		return step
	}
	if s.notifier == nil {
		step.Status = StepSkipped
		return step
	}
	member, err := s.members.FindByID(ctx, invite.OrganizationID, invite.MemberID)
	if err != nil || member == nil {
		if err == nil {
			err = errors.New("member not found")
		}
		step.Status = StepFailed
		step.Error = err.Error()
		return step
	}
	if !s.notifier.OnboardingInvite(ctx, *member, *invite) {
		step.Status = StepFailed
		step.Error = "email not sent"
		return step
	}
	sentAt := s.now().UTC()
	invite.EmailSentAt = &sentAt
	if err := s.repo.Update(ctx, invite); err != nil {
		s.warn(ctx, invite, "email sent but not recorded", err)
	}
	step.Status = StepSucceeded
	return step
}

// RetryStep re-runs payment_setup or send_email on a pending invite.
func (s *service) RetryStep(ctx context.Context, orgID, inviteID uuid.UUID, step enums.OnboardingStep) (*Result, error) {
	if step == enums.OnboardingStepCreateInvite {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "create_invite cannot be retried; start a new invite")
	}
	invite, err := s.loadPending(ctx, orgID, inviteID)
	if err != nil {
		return nil, err
	}

	var outcome StepResult
	switch step {
	case enums.OnboardingStepPaymentSetup:
		outcome = s.paymentSetup(ctx, invite)
	case enums.OnboardingStepSendEmail:
		outcome = s.sendEmail(ctx, invite)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown onboarding step %q", step))
	}
	return &Result{Invite: NewInviteView(*invite), Steps: []StepResult{outcome}}, nil
}

func (s *service) loadPending(ctx context.Context, orgID, inviteID uuid.UUID) (*models.OnboardingInvite, error) {
	invite, err := s.repo.FindByID(ctx, orgID, inviteID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invite")
	}
	if invite == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invite not found")
	}
	if invite.Status != enums.OnboardingInviteStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invite is %s", invite.Status))
	}
	return invite, nil
}

// MarkPaid settles one part's pending payment through payment recording and
// completes the invite once every included part is paid. A part whose payment
// was already settled is only marked on the invite.
func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*MarkPaidResult, error) {
	if input.Part != enums.PaymentTypeDues && input.Part != enums.PaymentTypeEnrollmentFee {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid invite part %q", input.Part))
	}
	invite, err := s.loadPending(ctx, input.OrganizationID, input.InviteID)
	if err != nil {
		return nil, err
	}
	paymentID, paid, ok := partOf(*invite, input.Part)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invite does not include an enrollment fee")
	}
	if paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s already paid", input.Part))
	}

	pending, err := s.paymentRepo.FindByID(ctx, input.OrganizationID, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invite payment")
	}
	if pending == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invite payment not found")
	}

	result := &MarkPaidResult{}
	switch pending.Status {
	case enums.PaymentStatusPending:
		recorded, err := s.payments.Record(ctx, payments.RecordInput{
			OrganizationID:   input.OrganizationID,
			MembershipID:     invite.MembershipID,
			Type:             input.Part,
			Method:           input.Method,
			Reference:        input.Reference,
			RecordedBy:       input.RecordedBy,
			Notes:            input.Notes,
			PendingPaymentID: &paymentID,
		})
		if err != nil {
			return nil, err
		}
		result.Payment = recorded
	case enums.PaymentStatusCompleted:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invite payment is %s", pending.Status))
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, input.OrganizationID, invite.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invite")
		}
		if locked == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "invite not found")
		}
		if input.Part == enums.PaymentTypeDues {
			locked.DuesPaid = true
		} else {
			locked.EnrollmentFeePaid = true
		}
		if locked.AllPartsPaid() && locked.Status == enums.OnboardingInviteStatusPending {
			now := s.now().UTC()
			locked.Status = enums.OnboardingInviteStatusCompleted
			locked.CompletedAt = &now
			result.Completed = true
		}
		if err := repo.Update(ctx, locked); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save invite")
		}
		invite = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Invite = NewInviteView(*invite)

	if s.logg != nil {
		logCtx := s.logg.WithMembershipID(ctx, invite.MembershipID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"invite_id": invite.ID.String(), "part": input.Part, "completed": result.Completed})
		s.logg.Info(logCtx, "onboarding payment marked paid")
	}
	return result, nil
}

func partOf(invite models.OnboardingInvite, part enums.PaymentType) (uuid.UUID, bool, bool) {
	switch part {
	case enums.PaymentTypeDues:
		if invite.DuesPaymentID == nil {
			return uuid.Nil, false, false
		}
		return *invite.DuesPaymentID, invite.DuesPaid, true
	case enums.PaymentTypeEnrollmentFee:
		if !invite.IncludesEnrollmentFee || invite.EnrollmentFeePaymentID == nil {
			return uuid.Nil, false, false
		}
		return *invite.EnrollmentFeePaymentID, invite.EnrollmentFeePaid, true
	}
	return uuid.Nil, false, false
}

// CompleteCheckout marks every unpaid part paid by the processor after a
// hosted checkout finishes. Replays on a completed invite are no-ops.
func (s *service) CompleteCheckout(ctx context.Context, orgID, inviteID uuid.UUID, paymentIntentID string) (*MarkPaidResult, error) {
	invite, err := s.repo.FindByID(ctx, orgID, inviteID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invite")
	}
	if invite == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invite not found")
	}
	if invite.Status == enums.OnboardingInviteStatusCompleted {
		return &MarkPaidResult{Invite: NewInviteView(*invite), Completed: true}, nil
	}

	parts := []enums.PaymentType{enums.PaymentTypeEnrollmentFee, enums.PaymentTypeDues}
	var last *MarkPaidResult
	for _, part := range parts {
		_, paid, ok := partOf(*invite, part)
		if !ok || paid {
			continue
		}
		last, err = s.MarkPaid(ctx, MarkPaidInput{
			OrganizationID: orgID,
			InviteID:       inviteID,
			Part:           part,
			Method:         enums.PaymentMethodStripe,
			Reference:      paymentIntentID,
		})
		if err != nil {
			return nil, err
		}
	}
	if last == nil {
		return &MarkPaidResult{Invite: NewInviteView(*invite)}, nil
	}
	return last, nil
}

// ExpireInvites cancels pending invites past their expiry and fails their
// unpaid payments. It returns how many invites were cancelled.
func (s *service) ExpireInvites(ctx context.Context, now time.Time) (int, error) {
	const batch = 100
	expired := 0
	for {
		rows, err := s.repo.ListExpired(ctx, now, batch)
		if err != nil {
			return expired, fmt.Errorf("list expired invites: %w", err)
		}
		progressed := 0
		for _, row := range rows {
			ok, err := s.expire(ctx, row, now)
			if err != nil {
				s.warn(ctx, &row, "invite expiry failed", err)
				continue
			}
			progressed++
			if ok {
				expired++
			}
		}
		if len(rows) < batch || progressed == 0 {
			return expired, nil
		}
	}
}

func (s *service) expire(ctx context.Context, row models.OnboardingInvite, now time.Time) (bool, error) {
	changed := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invite, err := repo.FindForUpdate(ctx, row.OrganizationID, row.ID)
		if err != nil {
			return err
		}
		if invite == nil || invite.Status != enums.OnboardingInviteStatusPending || !invite.ExpiresAt.Before(now) {
			return nil
		}
		paymentRepo := s.paymentRepo.WithTx(tx)
		for _, id := range []*uuid.UUID{invite.DuesPaymentID, invite.EnrollmentFeePaymentID} {
			if id == nil {
				continue
			}
			p, err := paymentRepo.FindForUpdate(ctx, invite.OrganizationID, *id)
			if err != nil {
				return err
			}
			if p == nil || p.Status != enums.PaymentStatusPending {
				continue
			}
			p.Status = enums.PaymentStatusFailed
			if err := paymentRepo.Update(ctx, p); err != nil {
				return err
			}
		}
		invite.Status = enums.OnboardingInviteStatusCancelled
		if err := repo.Update(ctx, invite); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *service) warn(ctx context.Context, invite *models.OnboardingInvite, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithMembershipID(ctx, invite.MembershipID.String())
	logCtx = s.logg.WithField(logCtx, "invite_id", invite.ID.String())
	if err != nil {
		logCtx = s.logg.WithField(logCtx, "error", err.Error())
	}
	s.logg.Warn(logCtx, msg)
}
