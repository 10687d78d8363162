package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/internal/billing"
	"github.com/angelmondragon/duesengine/internal/members"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/organizations"
	"github.com/angelmondragon/duesengine/pkg/db"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/metrics"
	"github.com/angelmondragon/duesengine/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusNotifier interface {
	StatusChanged(ctx context.Context, member models.Member, from, to enums.MembershipStatus) bool
}

// Service records payments and applies their effect on memberships.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*RecordResult, error)
	Preview(ctx context.Context, input PreviewInput) (*Calculation, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	SetRemindersPaused(ctx context.Context, orgID, paymentID uuid.UUID, paused bool) (*PaymentView, error)
	MarkRefunded(ctx context.Context, orgID, paymentID uuid.UUID) (*PaymentView, error)
	RecordProcessorInvoice(ctx context.Context, invoice ProcessorInvoice) (*RecordResult, bool, error)
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Repo              Repository
	MembershipRepo    memberships.Repository
	MemberRepo        members.Repository
	OrganizationRepo  organizations.Repository
	TransactionRunner txRunner
	Notifier          statusNotifier
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
	// EligibilityThreshold defaults to memberships.DefaultEligibilityThreshold.
	EligibilityThreshold int
	Now                  func() time.Time
}

type service struct {
	repo        Repository
	memberships memberships.Repository
	members     members.Repository
	orgs        organizations.Repository
	txRunner    txRunner
	notifier    statusNotifier
	metrics     *metrics.BillingMetrics
	logg        *logger.Logger
	threshold   int
	now         func() time.Time
}

// NewService builds a payment service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
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
	threshold := params.EligibilityThreshold
	if threshold <= 0 {
		threshold = memberships.DefaultEligibilityThreshold
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		memberships: params.MembershipRepo,
		members:     params.MemberRepo,
		orgs:        params.OrganizationRepo,
		txRunner:    params.TransactionRunner,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
		threshold:   threshold,
		now:         now,
	}, nil
}

// Record writes the payment and the membership's new state in one transaction.
// With PendingPaymentID set it settles that pending row instead of inserting.
func (s *service) Record(ctx context.Context, input RecordInput) (*RecordResult, error) {
	if err := validateRecordInput(input); err != nil {
		return nil, err
	}

	var (
		result      *RecordResult
		beneficiary *models.Member
	)
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, beneficiary, err = s.recordWithTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded(result.Payment.Type.String(), result.Payment.Method.String())
	if result.StatusChanged {
		s.metrics.StatusTransition(result.PreviousStatus.String(), result.NewStatus.String())
		if s.notifier != nil && beneficiary != nil {
			result.NotificationSent = s.notifier.StatusChanged(ctx, *beneficiary, result.PreviousStatus, result.NewStatus)
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithMembershipID(ctx, input.MembershipID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payment_id":      result.Payment.ID.String(),
			"payment_type":    result.Payment.Type,
			"method":          result.Payment.Method,
			"months_credited": result.Payment.MonthsCredited,
			"status_from":     result.PreviousStatus,
			"status_to":       result.NewStatus,
			"settled_pending": result.Settled,
		})
		s.logg.Info(logCtx, "payment recorded")
	}
	return result, nil
}

func (s *service) recordWithTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*RecordResult, *models.Member, error) {
	repo := s.repo.WithTx(tx)
	membershipRepo := s.memberships.WithTx(tx)
	memberRepo := s.members.WithTx(tx)
	orgRepo := s.orgs.WithTx(tx)

	m, err := membershipRepo.FindForUpdate(ctx, input.OrganizationID, input.MembershipID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if m == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}

	org, err := orgRepo.FindByID(ctx, input.OrganizationID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	if org == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	plan, err := orgRepo.FindPlan(ctx, input.OrganizationID, m.PlanID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	beneficiary, err := memberRepo.FindByID(ctx, input.OrganizationID, m.MemberID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load member")
	}
	if beneficiary == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	payerID := m.MemberID
	if input.MemberID != uuid.Nil && input.MemberID != m.MemberID {
		if m.PayerMemberID == nil || *m.PayerMemberID != input.MemberID {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "member_id must be the member or their payer")
		}
		payer, err := memberRepo.FindByID(ctx, input.OrganizationID, input.MemberID)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payer")
		}
		if payer == nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		payerID = payer.ID
	}

	var (
		payment *models.Payment
		settled bool
	)
	if input.PendingPaymentID != nil {
		payment, err = repo.FindForUpdate(ctx, input.OrganizationID, *input.PendingPaymentID)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending payment")
		}
		if payment == nil || payment.MembershipID != m.ID {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "pending payment not found")
		}
		if payment.Status != enums.PaymentStatusPending {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment is already %s", payment.Status))
		}
		settled = true
	} else {
		months := input.MonthsCredited
		if input.Type == enums.PaymentTypeDues && months == 0 {
			months = billing.PeriodMonths(m.BillingFrequency)
		}
		if input.Type == enums.PaymentTypeEnrollmentFee {
			months = 0
		}
		if input.Type != enums.PaymentTypeEnrollmentFee {
			payment, err = claimOpenInvoice(ctx, repo, *m)
			if err != nil {
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open invoice")
			}
		}
		if payment != nil {
			// the recorded amount replaces what the invoice asked for
			payment.Type = input.Type
			payment.AmountCents = input.AmountCents
			payment.MonthsCredited = months
			settled = true
		} else {
			payment = &models.Payment{
				OrganizationID: input.OrganizationID,
				MembershipID:   m.ID,
				Type:           input.Type,
				AmountCents:    input.AmountCents,
				MonthsCredited: months,
			}
			if input.Type != enums.PaymentTypeEnrollmentFee {
				payment.DueDate = m.NextPaymentDue
			}
		}
	}

	now := s.now().UTC()
	calc := Calculate(CalculationInput{
		Membership:     *m,
		Type:           payment.Type,
		Method:         input.Method,
		AmountCents:    payment.AmountCents,
		MonthsCredited: payment.MonthsCredited,
		FeePolicy:      organizations.FeePolicy(*org),
		Threshold:      s.threshold,
		Now:            now,
	})

	payment.MemberID = payerID
	payment.Method = input.Method
	payment.Status = enums.PaymentStatusCompleted
	payment.StripeFeeCents = calc.Fees.StripeFee
	payment.PlatformFeeCents = calc.Fees.PlatformFee
	payment.TotalChargedCents = calc.Fees.TotalCharged
	payment.NetAmountCents = calc.Fees.NetAmount
	payment.RecordedBy = input.RecordedBy
	payment.PaidAt = &now
	applyReference(payment, input)
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		payment.Notes = &notes
	}

	if settled {
		err = repo.Update(ctx, payment)
	} else {
		err = repo.Create(ctx, payment)
	}
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already recorded")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save payment")
	}

	calc.Apply(m)
	if err := membershipRepo.Save(ctx, m); err != nil {
		return nil, nil, memberships.MapSaveError(err)
	}

	return &RecordResult{
		Payment:        NewPaymentView(*payment),
		Membership:     memberships.NewView(*m),
		StatusChanged:  calc.StatusChanged,
		PreviousStatus: calc.PreviousStatus,
		NewStatus:      calc.NewStatus,
		Settled:        settled,
	}, beneficiary, nil
}

// claimOpenInvoice locks the oldest pending dues row for m, whether the sweep
// or an onboarding invite opened it.
func claimOpenInvoice(ctx context.Context, repo Repository, m models.Membership) (*models.Payment, error) {
	open, err := repo.ListOpenDues(ctx, m.OrganizationID, m.ID)
	if err != nil {
		return nil, err
	}
	for _, row := range open {
		locked, err := repo.FindForUpdate(ctx, m.OrganizationID, row.ID)
		if err != nil {
			return nil, err
		}
		if locked != nil && locked.Status == enums.PaymentStatusPending {
			return locked, nil
		}
	}
	return nil, nil
}

func applyReference(p *models.Payment, input RecordInput) {
	ref := strings.TrimSpace(input.Reference)
	if ref != "" {
		switch input.Method {
		case enums.PaymentMethodCheck:
			p.CheckNumber = &ref
		case enums.PaymentMethodZelle:
			p.ZelleTransactionID = &ref
		case enums.PaymentMethodStripe:
			p.StripePaymentIntentID = &ref
		}
	}
	if invoiceID := strings.TrimSpace(input.StripeInvoiceID); invoiceID != "" {
		p.StripeInvoiceID = &invoiceID
	}
}

func validateRecordInput(input RecordInput) error {
	if input.OrganizationID == uuid.Nil || input.MembershipID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "organization and membership are required")
	}
	if !input.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	if input.PendingPaymentID == nil {
		if !input.Type.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment type %q", input.Type))
		}
		if input.AmountCents <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
		}
		if input.MonthsCredited < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "months credited must not be negative")
		}
		if input.Type == enums.PaymentTypeBackDues && input.MonthsCredited == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "back dues must credit at least one month")
		}
	}
	if input.Method.IsManual() && input.RecordedBy == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recorded_by is required for manual payments")
	}
	ref := strings.TrimSpace(input.Reference)
	switch input.Method {
	case enums.PaymentMethodCheck:
		if ref == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "check_number is required for check payments")
		}
	case enums.PaymentMethodZelle:
		if ref == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "zelle_transaction_id is required for zelle payments")
		}
	}
	return nil
}

// Preview runs the same math as Record without writing anything.
func (s *service) Preview(ctx context.Context, input PreviewInput) (*Calculation, error) {
	if input.Type == "" {
		input.Type = enums.PaymentTypeDues
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment type %q", input.Type))
	}
	if input.Method == "" {
		input.Method = enums.PaymentMethodStripe
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	if input.MonthsCredited < 0 || input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount and months must not be negative")
	}

	m, err := s.memberships.FindByID(ctx, input.OrganizationID, input.MembershipID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if m == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	org, err := s.orgs.FindByID(ctx, input.OrganizationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	if org == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	plan, err := s.orgs.FindPlan(ctx, input.OrganizationID, m.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	months := input.MonthsCredited
	if input.Type == enums.PaymentTypeDues && months == 0 {
		months = billing.PeriodMonths(m.BillingFrequency)
	}
	amount := input.AmountCents
	if amount == 0 {
		amount = billing.ExpectedAmount(*plan, input.Type, m.BillingFrequency, months)
	}

	calc := Calculate(CalculationInput{
		Membership:     *m,
		Type:           input.Type,
		Method:         input.Method,
		AmountCents:    amount,
		MonthsCredited: months,
		FeePolicy:      organizations.FeePolicy(*org),
		Threshold:      s.threshold,
		Now:            s.now(),
	})
	return &calc, nil
}

// List pages a membership's ledger newest first.
func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	m, err := s.memberships.FindByID(ctx, input.OrganizationID, input.MembershipID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if m == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	rows, err := s.repo.ListByMembership(ctx, input.OrganizationID, input.MembershipID, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	rows, next := pagination.Page(rows, limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})

	out := &ListResult{Payments: make([]PaymentView, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Payments = append(out.Payments, NewPaymentView(row))
	}
	return out, nil
}

// SetRemindersPaused toggles the administrative override that stops automatic reminders.
func (s *service) SetRemindersPaused(ctx context.Context, orgID, paymentID uuid.UUID, paused bool) (*PaymentView, error) {
	return s.mutate(ctx, orgID, paymentID, func(p *models.Payment) (bool, error) {
		if p.RemindersPaused == paused {
			return false, nil
		}
		p.RemindersPaused = paused
		return true, nil
	})
}

// MarkRefunded flags a completed payment as refunded. The membership is not
// touched; reversing credited months is a manual adjustment.
func (s *service) MarkRefunded(ctx context.Context, orgID, paymentID uuid.UUID) (*PaymentView, error) {
	return s.mutate(ctx, orgID, paymentID, func(p *models.Payment) (bool, error) {
		switch p.Status {
		case enums.PaymentStatusRefunded:
			return false, nil
		case enums.PaymentStatusCompleted:
		default:
			return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot refund a %s payment", p.Status))
		}
		now := s.now().UTC()
		p.Status = enums.PaymentStatusRefunded
		if p.RefundedAt == nil {
			p.RefundedAt = &now
		}
		return true, nil
	})
}

func (s *service) mutate(ctx context.Context, orgID, paymentID uuid.UUID, fn func(p *models.Payment) (bool, error)) (*PaymentView, error) {
	var view PaymentView
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.FindForUpdate(ctx, orgID, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		if p == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		changed, err := fn(p)
		if err != nil {
			return err
		}
		if changed {
			if err := repo.Update(ctx, p); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save payment")
			}
		}
		view = NewPaymentView(*p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// RecordProcessorInvoice records a paid subscription invoice once. The bool
// reports whether the invoice had already been recorded.
func (s *service) RecordProcessorInvoice(ctx context.Context, invoice ProcessorInvoice) (*RecordResult, bool, error) {
	invoiceID := strings.TrimSpace(invoice.InvoiceID)
	if invoiceID == "" || strings.TrimSpace(invoice.SubscriptionID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invoice and subscription ids are required")
	}

	existing, err := s.repo.FindByStripeInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice payment")
	}
	if existing != nil {
		return nil, true, nil
	}

	m, err := s.memberships.FindBySubscriptionID(ctx, invoice.SubscriptionID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if m == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "no membership for subscription")
	}
	plan, err := s.orgs.FindPlan(ctx, m.OrganizationID, m.PlanID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	months := billing.PeriodMonths(m.BillingFrequency)
	amount := billing.ExpectedAmount(*plan, enums.PaymentTypeDues, m.BillingFrequency, months)
	if amount <= 0 {
		amount = invoice.AmountPaidCents
	}
	payer := m.MemberID
	if m.PayerMemberID != nil {
		payer = *m.PayerMemberID
	}

	result, err := s.Record(ctx, RecordInput{
		OrganizationID:  m.OrganizationID,
		MembershipID:    m.ID,
		MemberID:        payer,
		Type:            enums.PaymentTypeDues,
		Method:          enums.PaymentMethodStripe,
		AmountCents:     amount,
		MonthsCredited:  months,
		Reference:       invoice.PaymentIntentID,
		StripeInvoiceID: invoiceID,
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeConflict) {
			if dup, findErr := s.repo.FindByStripeInvoiceID(ctx, invoiceID); findErr == nil && dup != nil {
				return nil, true, nil
			}
		}
		return nil, false, err
	}
	return result, false, nil
}
