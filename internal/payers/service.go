package payers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/internal/billing"
	"github.com/angelmondragon/duesengine/internal/members"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/organizations"
	"github.com/angelmondragon/duesengine/internal/subscriptions"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type setupNotifier interface {
	PayerSetupRequested(ctx context.Context, payer, beneficiary models.Member, setupURL string) bool
}

// Service links one member's dues to another member's card.
type Service interface {
	Assign(ctx context.Context, orgID, membershipID, payerMemberID uuid.UUID) (*AssignResult, error)
	Remove(ctx context.Context, orgID, membershipID uuid.UUID) (*memberships.View, error)
	CompleteSetup(ctx context.Context, customerID, paymentMethodID string) (*SetupResult, error)
}

// ServiceParams groups dependencies for the payer service.
type ServiceParams struct {
	MembershipRepo    memberships.Repository
	MemberRepo        members.Repository
	OrganizationRepo  organizations.Repository
	Processor         subscriptions.Processor
	TransactionRunner txRunner
	Notifier          setupNotifier
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
	// PublicURL is where the processor sends the payer after card setup.
	PublicURL string
}

type service struct {
	memberships memberships.Repository
	members     members.Repository
	orgs        organizations.Repository
	processor   subscriptions.Processor
	txRunner    txRunner
	notifier    setupNotifier
	metrics     *metrics.BillingMetrics
	logg        *logger.Logger
	publicURL   string
}

// NewService builds a payer service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.MembershipRepo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if params.MemberRepo == nil {
		return nil, fmt.Errorf("member repository required")
	}
	if params.OrganizationRepo == nil {
		return nil, fmt.Errorf("organization repository required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		memberships: params.MembershipRepo,
		members:     params.MemberRepo,
		orgs:        params.OrganizationRepo,
		processor:   params.Processor,
		txRunner:    params.TransactionRunner,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
		publicURL:   strings.TrimRight(params.PublicURL, "/"),
	}, nil
}

func invalid(reason, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]string{"reason": reason})
}

// Assign makes payerMemberID pay the membership's dues. With a card on file
// the subscription is created first and the link written after; otherwise the
// payer gets a processor customer and a setup link and the membership waits.
func (s *service) Assign(ctx context.Context, orgID, membershipID, payerMemberID uuid.UUID) (*AssignResult, error) {
	m, err := s.memberships.FindByID(ctx, orgID, membershipID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if m == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	if m.Status == enums.MembershipStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "membership is cancelled")
	}
	if err := s.validateAssignment(ctx, *m, payerMemberID); err != nil {
		return nil, err
	}

	beneficiary, err := s.loadMember(ctx, orgID, m.MemberID)
	if err != nil {
		return nil, err
	}
	payer, err := s.loadMember(ctx, orgID, payerMemberID)
	if err != nil {
		return nil, err
	}

	if payer.HasCardOnFile() {
		return s.assignWithSubscription(ctx, *m, *payer)
	}
	return s.assignAwaitingSetup(ctx, *m, *payer, *beneficiary)
}

// validateAssignment enforces the payer rules in order; each failure has its own reason.
func (s *service) validateAssignment(ctx context.Context, m models.Membership, payerMemberID uuid.UUID) error {
	if payerMemberID == uuid.Nil || payerMemberID == m.MemberID {
		return invalid(ReasonSelfPayer, "a member cannot pay for their own membership")
	}
	if m.HasActiveSubscription() {
		return invalid(ReasonActiveSubscription, "membership already has an active subscription")
	}
	if m.HasPayer() {
		return invalid(ReasonAlreadyHasPayer, "membership already has a payer")
	}

	payerMembership, err := s.memberships.FindByMemberID(ctx, m.OrganizationID, payerMemberID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payer membership")
	}
	return checkChain(ctx, s.memberships, m, payerMembership)
}

// checkChain rejects an assignment that would make a funded member a payer or
// a payer a funded member.
func checkChain(ctx context.Context, repo memberships.Repository, m models.Membership, payerMembership *models.Membership) error {
	if payerMembership != nil && payerMembership.HasPayer() {
		return invalid(ReasonPayerIsFunded, "payer's own dues are paid by another member")
	}
	funded, err := repo.CountFundedBy(ctx, m.OrganizationID, m.MemberID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count funded memberships")
	}
	if funded > 0 {
		return invalid(ReasonMemberIsPayer, "member already pays for another membership")
	}
	return nil
}

// lockForAssignment locks the beneficiary's membership and the payer's own
// membership, if any, in id order, then repeats the chain checks so two
// crossing assignments cannot both commit.
func lockForAssignment(ctx context.Context, repo memberships.Repository, m models.Membership, payerMemberID uuid.UUID) (*models.Membership, error) {
	payerMembership, err := repo.FindByMemberID(ctx, m.OrganizationID, payerMemberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payer membership")
	}
	ids := []uuid.UUID{m.ID}
	if payerMembership != nil {
		ids = append(ids, payerMembership.ID)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	var locked, payerLocked *models.Membership
	for _, id := range ids {
		row, err := repo.FindForUpdate(ctx, m.OrganizationID, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
		}
		if id == m.ID {
			locked = row
		} else {
			payerLocked = row
		}
	}
	if locked == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	if err := checkChain(ctx, repo, *locked, payerLocked); err != nil {
		return nil, err
	}
	return locked, nil
}

func (s *service) loadMember(ctx context.Context, orgID, memberID uuid.UUID) (*models.Member, error) {
	member, err := s.members.FindByID(ctx, orgID, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load member")
	}
	if member == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	return member, nil
}

func (s *service) subscriptionAmount(ctx context.Context, m models.Membership) (int64, error) {
	org, err := s.orgs.FindByID(ctx, m.OrganizationID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organization")
	}
	if org == nil {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	plan, err := s.orgs.FindPlan(ctx, m.OrganizationID, m.PlanID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	dues := plan.DuesFor(m.BillingFrequency)
	if dues <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("plan has no %s price", m.BillingFrequency))
	}
	fees := billing.CalculateFees(dues, enums.PaymentMethodStripe, organizations.FeePolicy(*org))
	return fees.TotalCharged, nil
}

// assignWithSubscription creates the subscription, then writes the link. A
// failed write cancels the subscription so it never outlives its local record.
func (s *service) assignWithSubscription(ctx context.Context, m models.Membership, payer models.Member) (*AssignResult, error) {
	amount, err := s.subscriptionAmount(ctx, m)
	if err != nil {
		return nil, err
	}

	sub, err := s.processor.CreateSubscription(ctx, subscriptions.SubscriptionParams{
		CustomerID:      *payer.StripeCustomerID,
		PaymentMethodID: *payer.DefaultPaymentMethodID,
		AmountCents:     amount,
		Frequency:       m.BillingFrequency,
		Metadata: map[string]string{
			"organization_id": m.OrganizationID.String(),
			"membership_id":   m.ID.String(),
			"payer_member_id": payer.ID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}

	card, err := s.processor.DescribePaymentMethod(ctx, *payer.DefaultPaymentMethodID)
	if err != nil {
		s.warn(ctx, m.ID, "payment method details unavailable", err)
		card = nil
	}

	var saved models.Membership
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.memberships.WithTx(tx)
		locked, err := lockForAssignment(ctx, repo, m, payer.ID)
		if err != nil {
			return err
		}
		if locked.HasActiveSubscription() {
			return invalid(ReasonActiveSubscription, "membership already has an active subscription")
		}
		if locked.PayerMemberID != nil && *locked.PayerMemberID != payer.ID {
			return invalid(ReasonAlreadyHasPayer, "membership already has a payer")
		}

		status := sub.Status
		subID := sub.ID
		customerID := *payer.StripeCustomerID
		locked.PayerMemberID = &payer.ID
		locked.AutoPayEnabled = true
		locked.StripeSubscriptionID = &subID
		locked.StripeCustomerID = &customerID
		locked.SubscriptionStatus = &status
		locked.PaymentMethodDetails = card
		if err := repo.Save(ctx, locked); err != nil {
			return memberships.MapSaveError(err)
		}
		saved = *locked
		return nil
	})
	if err != nil {
		return nil, s.compensate(ctx, m.ID, sub.ID, err)
	}

	if s.logg != nil {
		logCtx := s.logg.WithMembershipID(ctx, m.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"payer_member_id": payer.ID.String(), "subscription_id": sub.ID})
		s.logg.Info(logCtx, "payer subscription created")
	}
	return &AssignResult{
		Path:                PathSubscription,
		SubscriptionCreated: true,
		SubscriptionID:      sub.ID,
		Membership:          memberships.NewView(saved),
	}, nil
}

// compensate cancels a subscription whose local write failed. It returns a
// ROLLED_BACK error when the cancel lands and DEPENDENCY_ERROR when it does not.
func (s *service) compensate(ctx context.Context, membershipID uuid.UUID, subscriptionID string, cause error) error {
	details := map[string]any{
		"subscription_id": subscriptionID,
		"cause":           pkgerrors.CodeOf(cause),
	}
	cancelErr := s.processor.CancelSubscription(ctx, subscriptionID)
	if cancelErr != nil && !errors.Is(cancelErr, subscriptions.ErrSubscriptionNotFound) {
		s.metrics.Compensation("failed")
		if s.logg != nil {
			logCtx := s.logg.WithMembershipID(ctx, membershipID.String())
			logCtx = s.logg.WithField(logCtx, "subscription_id", subscriptionID)
			s.logg.Error(logCtx, "compensating subscription cancel failed", multierr.Combine(cause, cancelErr))
		}
		details["needs_manual_cancel"] = true
		return pkgerrors.Wrap(pkgerrors.CodeDependency, multierr.Combine(cause, cancelErr), "cancel subscription after failed write").WithDetails(details)
	}

	s.metrics.Compensation("cancelled")
	s.warn(ctx, membershipID, "payer assignment rolled back", cause)
	return pkgerrors.Wrap(pkgerrors.CodeRolledBack, cause, "payer assignment rolled back; subscription cancelled").WithDetails(details)
}

// assignAwaitingSetup links the payer and their processor customer without a
// subscription, then asks the payer to save a card. The setup link and email
// are best-effort.
func (s *service) assignAwaitingSetup(ctx context.Context, m models.Membership, payer, beneficiary models.Member) (*AssignResult, error) {
	customerID := ""
	newCustomer := false
	if payer.StripeCustomerID != nil && *payer.StripeCustomerID != "" {
		customerID = *payer.StripeCustomerID
	} else {
		created, err := s.processor.CreateCustomer(ctx, subscriptions.CustomerParams{
			Email: payer.Email,
			Name:  payer.FullName(),
			Metadata: map[string]string{
				"organization_id": payer.OrganizationID.String(),
				"member_id":       payer.ID.String(),
			},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create processor customer")
		}
		customerID = created
		newCustomer = true
	}

	var saved models.Membership
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if newCustomer {
			payer.StripeCustomerID = &customerID
			if err := s.members.WithTx(tx).UpdateProcessorRefs(ctx, &payer); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save payer customer")
			}
		}
		repo := s.memberships.WithTx(tx)
		locked, err := lockForAssignment(ctx, repo, m, payer.ID)
		if err != nil {
			return err
		}
		if locked.HasPayer() || locked.HasActiveSubscription() {
			return invalid(ReasonAlreadyHasPayer, "membership already has a payer")
		}
		locked.PayerMemberID = &payer.ID
		locked.StripeCustomerID = &customerID
		locked.AutoPayEnabled = false
		if err := repo.Save(ctx, locked); err != nil {
			return memberships.MapSaveError(err)
		}
		saved = *locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &AssignResult{
		Path:          PathSetupLink,
		AwaitingSetup: true,
		Membership:    memberships.NewView(saved),
	}

	session, err := s.processor.CreateSetupSession(ctx, subscriptions.SetupParams{
		CustomerID: customerID,
		SuccessURL: s.publicURL + "/payers/setup/complete",
		CancelURL:  s.publicURL + "/payers/setup/cancelled",
		Metadata: map[string]string{
			"organization_id": m.OrganizationID.String(),
			"payer_member_id": payer.ID.String(),
		},
	})
	if err != nil {
		s.warn(ctx, m.ID, "payer setup link not created", err)
		return result, nil
	}
	result.SetupURL = session.URL
	if s.notifier != nil {
		result.PaymentLinkSent = s.notifier.PayerSetupRequested(ctx, payer, beneficiary, session.URL)
	}
	return result, nil
}

// Remove cancels any subscription and clears every payer field in one write.
// A subscription the processor no longer knows is ignored; any other cancel
// failure aborts before the write so nothing is left billing unseen.
func (s *service) Remove(ctx context.Context, orgID, membershipID uuid.UUID) (*memberships.View, error) {
	m, err := s.memberships.FindByID(ctx, orgID, membershipID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if m == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	if !m.HasPayer() && m.StripeSubscriptionID == nil && !m.AutoPayEnabled {
		view := memberships.NewView(*m)
		return &view, nil
	}

	if err := s.cancelQuietly(ctx, m.ID, m.StripeSubscriptionID); err != nil {
		return nil, err
	}

	var view memberships.View
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.memberships.WithTx(tx)
		locked, err := repo.FindForUpdate(ctx, orgID, membershipID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
		}
		if locked == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		if locked.StripeSubscriptionID != nil && (m.StripeSubscriptionID == nil || *locked.StripeSubscriptionID != *m.StripeSubscriptionID) {
			return pkgerrors.New(pkgerrors.CodeConflict, "membership subscription changed; retry")
		}
		locked.ClearPayerBinding()
		if err := repo.Save(ctx, locked); err != nil {
			return memberships.MapSaveError(err)
		}
		view = memberships.NewView(*locked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithMembershipID(ctx, membershipID.String()), "payer removed")
	}
	return &view, nil
}

func (s *service) cancelQuietly(ctx context.Context, membershipID uuid.UUID, subscriptionID *string) error {
	if subscriptionID == nil || *subscriptionID == "" {
		return nil
	}
	err := s.processor.CancelSubscription(ctx, *subscriptionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, subscriptions.ErrSubscriptionNotFound):
		s.warn(ctx, membershipID, "subscription already gone at processor", err)
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
}

// CompleteSetup stores the payer's new card and starts a subscription for
// every membership that was waiting on it. Each membership is handled on its
// own; failures are reported per membership.
func (s *service) CompleteSetup(ctx context.Context, customerID, paymentMethodID string) (*SetupResult, error) {
	customerID = strings.TrimSpace(customerID)
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if customerID == "" || paymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and payment method are required")
	}

	payer, err := s.members.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payer")
	}
	if payer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no member for customer")
	}
	payer.DefaultPaymentMethodID = &paymentMethodID
	if err := s.members.UpdateProcessorRefs(ctx, payer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save payer card")
	}

	waiting, err := s.memberships.ListAwaitingPayerSetup(ctx, payer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list memberships awaiting setup")
	}

	result := &SetupResult{PayerMemberID: payer.ID, Activated: []uuid.UUID{}}
	var errs error
	for _, m := range waiting {
		if _, err := s.assignWithSubscription(ctx, m, *payer); err != nil {
			if result.Failed == nil {
				result.Failed = map[uuid.UUID]string{}
			}
			result.Failed[m.ID] = err.Error()
			errs = multierr.Append(errs, fmt.Errorf("membership %s: %w", m.ID, err))
			continue
		}
		result.Activated = append(result.Activated, m.ID)
	}
	if errs != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"payer_member_id": payer.ID.String(), "failed": len(result.Failed)})
		s.logg.Error(logCtx, "payer setup could not activate every membership", errs)
	}
	return result, nil
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
