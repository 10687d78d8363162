package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/duesengine/internal/members"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/organizations"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/internal/subscriptions/subscriptionstest"
	"github.com/angelmondragon/duesengine/pkg/db"
	"github.com/angelmondragon/duesengine/pkg/db/dbtest"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
)

type stubNotifier struct {
	fail bool
	sent []uuid.UUID
}

func (n *stubNotifier) OnboardingInvite(ctx context.Context, member models.Member, invite models.OnboardingInvite) bool {
	if n.fail {
		return false
	}
	n.sent = append(n.sent, invite.ID)
	return true
}

type harness struct {
	fx         *dbtest.Fixture
	svc        Service
	processor  *subscriptionstest.Processor
	notifier   *stubNotifier
	clock      time.Time
	membership models.Membership
	admin      uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fx := dbtest.Seed(t, dbtest.New(t))
	h := &harness{
		fx:        fx,
		processor: &subscriptionstest.Processor{},
		notifier:  &stubNotifier{},
		clock:     time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC),
		admin:     uuid.New(),
	}
	now := func() time.Time { return h.clock }
	txRunner := db.NewFromConn(fx.DB)
	paymentRepo := payments.NewRepository(fx.DB)
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:              paymentRepo,
		MembershipRepo:    memberships.NewRepository(fx.DB),
		MemberRepo:        members.NewRepository(fx.DB),
		OrganizationRepo:  organizations.NewRepository(fx.DB),
		TransactionRunner: txRunner,
		Now:               now,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(fx.DB),
		PaymentRepo:       paymentRepo,
		Payments:          paymentSvc,
		MembershipRepo:    memberships.NewRepository(fx.DB),
		MemberRepo:        members.NewRepository(fx.DB),
		OrganizationRepo:  organizations.NewRepository(fx.DB),
		Processor:         h.processor,
		TransactionRunner: txRunner,
		Notifier:          h.notifier,
		PublicURL:         "https://dues.example.org",
		InviteTTL:         72 * time.Hour,
		Now:               now,
	})
	require.NoError(t, err)
	h.svc = svc
	h.membership = fx.Membership(t, fx.Member(t, "Newbie"), func(m *models.Membership) {
		m.Status = enums.MembershipStatusPending
		m.EnrollmentFeeStatus = enums.EnrollmentFeeStatusUnpaid
	})
	return h
}

func (h *harness) start(t *testing.T, method enums.OnboardingMethod, withFee bool) *Result {
	t.Helper()
	result, err := h.svc.Start(context.Background(), StartInput{
		OrganizationID:       h.fx.Org.ID,
		MembershipID:         h.membership.ID,
		Method:               method,
		IncludeEnrollmentFee: withFee,
	})
	require.NoError(t, err)
	return result
}

func (h *harness) payment(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, h.fx.DB.First(&p, "id = ?", id).Error)
	return p
}

func (h *harness) invite(t *testing.T, id uuid.UUID) models.OnboardingInvite {
	t.Helper()
	var invite models.OnboardingInvite
	require.NoError(t, h.fx.DB.First(&invite, "id = ?", id).Error)
	return invite
}

func statuses(steps []StepResult) map[enums.OnboardingStep]StepStatus {
	out := make(map[enums.OnboardingStep]StepStatus, len(steps))
	for _, step := range steps {
		out[step.Step] = step.Status
	}
	return out
}

func TestStartStripeInvite(t *testing.T) {
	h := newHarness(t)
	result := h.start(t, enums.OnboardingMethodStripe, true)

	assert.Equal(t, map[enums.OnboardingStep]StepStatus{
		enums.OnboardingStepCreateInvite: StepSucceeded,
		enums.OnboardingStepPaymentSetup: StepSucceeded,
		enums.OnboardingStepSendEmail:    StepSucceeded,
	}, statuses(result.Steps))
	assert.False(t, result.Failed())

	stored := h.invite(t, result.Invite.ID)
	assert.Equal(t, enums.OnboardingInviteStatusPending, stored.Status)
	assert.True(t, stored.IncludesEnrollmentFee)
	assert.EqualValues(t, 5000, stored.DuesAmountCents)
	assert.EqualValues(t, 10000, stored.EnrollmentFeeAmountCents)
	require.NotNil(t, stored.SetupURL)
	require.NotNil(t, stored.EmailSentAt)
	assert.True(t, stored.ExpiresAt.Equal(h.clock.Add(72*time.Hour)))

	require.NotNil(t, stored.DuesPaymentID)
	dues := h.payment(t, *stored.DuesPaymentID)
	assert.Equal(t, enums.PaymentStatusPending, dues.Status)
	assert.Equal(t, 1, dues.MonthsCredited)
	require.NotNil(t, stored.EnrollmentFeePaymentID)
	assert.Equal(t, enums.PaymentTypeEnrollmentFee, h.payment(t, *stored.EnrollmentFeePaymentID).Type)

	require.Len(t, h.processor.Customers, 1)
	require.Len(t, h.processor.PaymentSession, 1)
	session := h.processor.PaymentSession[0]
	require.Len(t, session.LineItems, 2)
	assert.Equal(t, stored.ID.String(), session.Metadata["invite_id"])
	assert.Equal(t, []uuid.UUID{stored.ID}, h.notifier.sent)
}

func TestStartManualSkipsPaymentSetup(t *testing.T) {
	h := newHarness(t)
	result := h.start(t, enums.OnboardingMethodManual, false)

	steps := statuses(result.Steps)
	assert.Equal(t, StepSkipped, steps[enums.OnboardingStepPaymentSetup])
	assert.Equal(t, StepSucceeded, steps[enums.OnboardingStepSendEmail])
	assert.False(t, result.Invite.IncludesEnrollmentFee)
	assert.Empty(t, h.processor.PaymentSession)
	assert.Nil(t, result.Invite.SetupURL)
}

func TestStartRejectsSecondPendingInvite(t *testing.T) {
	h := newHarness(t)
	h.start(t, enums.OnboardingMethodManual, false)

	_, err := h.svc.Start(context.Background(), StartInput{
		OrganizationID: h.fx.Org.ID,
		MembershipID:   h.membership.ID,
		Method:         enums.OnboardingMethodManual,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestStartValidatesMethod(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Start(context.Background(), StartInput{
		OrganizationID: h.fx.Org.ID,
		MembershipID:   h.membership.ID,
		Method:         "carrier_pigeon",
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestFailedStepsCanBeRetried(t *testing.T) {
	h := newHarness(t)
	h.processor.PaymentSessionErr = errors.New("processor down")

	result := h.start(t, enums.OnboardingMethodStripe, false)
	steps := statuses(result.Steps)
	assert.Equal(t, StepFailed, steps[enums.OnboardingStepPaymentSetup])
	assert.Equal(t, StepSkipped, steps[enums.OnboardingStepSendEmail])
	assert.True(t, result.Failed())
	assert.Empty(t, h.notifier.sent)

	ctx := context.Background()
	_, err := h.svc.RetryStep(ctx, h.fx.Org.ID, result.Invite.ID, enums.OnboardingStepCreateInvite)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	h.processor.PaymentSessionErr = nil
	retried, err := h.svc.RetryStep(ctx, h.fx.Org.ID, result.Invite.ID, enums.OnboardingStepPaymentSetup)
	require.NoError(t, err)
	assert.Equal(t, StepSucceeded, retried.Steps[0].Status)
	require.NotNil(t, retried.Invite.SetupURL)

	// the customer from the first attempt is reused
	assert.Len(t, h.processor.Customers, 1)

	again, err := h.svc.RetryStep(ctx, h.fx.Org.ID, result.Invite.ID, enums.OnboardingStepPaymentSetup)
	require.NoError(t, err)
	assert.Equal(t, StepSucceeded, again.Steps[0].Status)
	assert.Len(t, h.processor.PaymentSession, 1, "existing setup url is kept")

	emailed, err := h.svc.RetryStep(ctx, h.fx.Org.ID, result.Invite.ID, enums.OnboardingStepSendEmail)
	require.NoError(t, err)
	assert.Equal(t, StepSucceeded, emailed.Steps[0].Status)
	assert.Len(t, h.notifier.sent, 1)
}

func TestMarkPaidCompletesInvite(t *testing.T) {
	h := newHarness(t)
	result := h.start(t, enums.OnboardingMethodManual, true)
	ctx := context.Background()

	fee, err := h.svc.MarkPaid(ctx, MarkPaidInput{
		OrganizationID: h.fx.Org.ID,
		InviteID:       result.Invite.ID,
		Part:           enums.PaymentTypeEnrollmentFee,
		Method:         enums.PaymentMethodCash,
		RecordedBy:     &h.admin,
	})
	require.NoError(t, err)
	assert.False(t, fee.Completed)
	require.NotNil(t, fee.Payment)
	assert.True(t, fee.Payment.Settled)

	dues, err := h.svc.MarkPaid(ctx, MarkPaidInput{
		OrganizationID: h.fx.Org.ID,
		InviteID:       result.Invite.ID,
		Part:           enums.PaymentTypeDues,
		Method:         enums.PaymentMethodCheck,
		Reference:      "1042",
		RecordedBy:     &h.admin,
	})
	require.NoError(t, err)
	assert.True(t, dues.Completed)
	assert.Equal(t, enums.OnboardingInviteStatusCompleted, dues.Invite.Status)
	require.NotNil(t, dues.Invite.CompletedAt)
	assert.Equal(t, enums.MembershipStatusWaitingPeriod, dues.Payment.NewStatus)

	stored := h.invite(t, result.Invite.ID)
	settled := h.payment(t, *stored.DuesPaymentID)
	assert.Equal(t, enums.PaymentStatusCompleted, settled.Status)
	assert.Equal(t, enums.PaymentMethodCheck, settled.Method)

	_, err = h.svc.MarkPaid(ctx, MarkPaidInput{
		OrganizationID: h.fx.Org.ID,
		InviteID:       result.Invite.ID,
		Part:           enums.PaymentTypeDues,
		Method:         enums.PaymentMethodCash,
		RecordedBy:     &h.admin,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}

func TestMarkPaidRejectsMissingPart(t *testing.T) {
	h := newHarness(t)
	result := h.start(t, enums.OnboardingMethodManual, false)

	_, err := h.svc.MarkPaid(context.Background(), MarkPaidInput{
		OrganizationID: h.fx.Org.ID,
		InviteID:       result.Invite.ID,
		Part:           enums.PaymentTypeEnrollmentFee,
		Method:         enums.PaymentMethodCash,
		RecordedBy:     &h.admin,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestCompleteCheckoutPaysEveryPart(t *testing.T) {
	h := newHarness(t)
	result := h.start(t, enums.OnboardingMethodStripe, true)
	ctx := context.Background()

	done, err := h.svc.CompleteCheckout(ctx, h.fx.Org.ID, result.Invite.ID, "pi_123")
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.True(t, done.Invite.DuesPaid)
	assert.True(t, done.Invite.EnrollmentFeePaid)

	stored := h.invite(t, result.Invite.ID)
	dues := h.payment(t, *stored.DuesPaymentID)
	require.NotNil(t, dues.StripePaymentIntentID)
	assert.Equal(t, "pi_123", *dues.StripePaymentIntentID)

	var m models.Membership
	require.NoError(t, h.fx.DB.First(&m, "id = ?", h.membership.ID).Error)
	assert.Equal(t, enums.EnrollmentFeeStatusPaid, m.EnrollmentFeeStatus)
	assert.Equal(t, 1, m.PaidMonths)
	assert.Equal(t, enums.MembershipStatusWaitingPeriod, m.Status)

	replay, err := h.svc.CompleteCheckout(ctx, h.fx.Org.ID, result.Invite.ID, "pi_123")
	require.NoError(t, err)
	assert.True(t, replay.Completed)
	assert.Nil(t, replay.Payment)
}

func TestExpireInvites(t *testing.T) {
	h := newHarness(t)
	result := h.start(t, enums.OnboardingMethodManual, true)
	ctx := context.Background()

	n, err := h.svc.ExpireInvites(ctx, h.clock.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = h.svc.ExpireInvites(ctx, h.clock.Add(73*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := h.invite(t, result.Invite.ID)
	assert.Equal(t, enums.OnboardingInviteStatusCancelled, stored.Status)
	assert.Equal(t, enums.PaymentStatusFailed, h.payment(t, *stored.DuesPaymentID).Status)
	assert.Equal(t, enums.PaymentStatusFailed, h.payment(t, *stored.EnrollmentFeePaymentID).Status)

	_, err = h.svc.RetryStep(ctx, h.fx.Org.ID, result.Invite.ID, enums.OnboardingStepSendEmail)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}
