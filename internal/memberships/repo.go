package memberships

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// ErrVersionConflict is returned by Save when the row changed after it was read.
var ErrVersionConflict = errors.New("membership was modified concurrently")

// Repository handles membership persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, membership *models.Membership) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Membership, error)
	FindForUpdate(ctx context.Context, orgID, id uuid.UUID) (*models.Membership, error)
	FindByMemberID(ctx context.Context, orgID, memberID uuid.UUID) (*models.Membership, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Membership, error)
	CountFundedBy(ctx context.Context, orgID, payerMemberID uuid.UUID) (int64, error)
	ListAwaitingPayerSetup(ctx context.Context, payerMemberID uuid.UUID) ([]models.Membership, error)
	Save(ctx context.Context, membership *models.Membership) error
	ListLapseCandidates(ctx context.Context, orgID uuid.UUID, dueOnOrBefore time.Time, after uuid.UUID, limit int) ([]models.Membership, error)
	ListCancelCandidates(ctx context.Context, orgID uuid.UUID, unpaidSince time.Time, after uuid.UUID, limit int) ([]models.Membership, error)
	ListNeedingInvoice(ctx context.Context, orgID uuid.UUID, dueOnOrBefore time.Time, after uuid.UUID, limit int) ([]models.Membership, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a membership repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, membership *models.Membership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Membership, error) {
	return r.first(r.db.WithContext(ctx).Where("organization_id = ? AND id = ?", orgID, id))
}

// FindForUpdate loads the membership holding a row lock until the surrounding
// transaction ends. Drivers without row locks (sqlite) ignore the clause and
// rely on the version check in Save.
func (r *repository) FindForUpdate(ctx context.Context, orgID, id uuid.UUID) (*models.Membership, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND id = ?", orgID, id))
}

func (r *repository) FindByMemberID(ctx context.Context, orgID, memberID uuid.UUID) (*models.Membership, error) {
	return r.first(r.db.WithContext(ctx).Where("organization_id = ? AND member_id = ?", orgID, memberID))
}

func (r *repository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Membership, error) {
	return r.first(r.db.WithContext(ctx).Where("stripe_subscription_id = ?", subscriptionID))
}

func (r *repository) first(query *gorm.DB) (*models.Membership, error) {
	var membership models.Membership
	if err := query.First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

// CountFundedBy counts memberships whose dues are paid by the given member.
func (r *repository) CountFundedBy(ctx context.Context, orgID, payerMemberID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("organization_id = ? AND payer_member_id = ?", orgID, payerMemberID).
		Count(&count).Error
	return count, err
}

// ListAwaitingPayerSetup returns memberships linked to the payer that have no subscription yet.
func (r *repository) ListAwaitingPayerSetup(ctx context.Context, payerMemberID uuid.UUID) ([]models.Membership, error) {
	var rows []models.Membership
	err := r.db.WithContext(ctx).
		Where("payer_member_id = ? AND stripe_subscription_id IS NULL", payerMemberID).
		Where("status <> ?", enums.MembershipStatusCancelled).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// Save writes every mutable column guarded by the version read earlier and
// bumps the version. A stale version yields ErrVersionConflict.
func (r *repository) Save(ctx context.Context, membership *models.Membership) error {
	if err := membership.ValidateBinding(); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND version = ?", membership.ID, membership.Version).
		Updates(mutableColumns(membership))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	membership.Version++
	return nil
}

func mutableColumns(m *models.Membership) map[string]any {
	return map[string]any{
		"status":                  m.Status,
		"paid_months":             m.PaidMonths,
		"enrollment_fee_status":   m.EnrollmentFeeStatus,
		"billing_frequency":       m.BillingFrequency,
		"billing_anniversary_day": m.BillingAnniversaryDay,
		"next_payment_due":        m.NextPaymentDue,
		"last_payment_date":       m.LastPaymentDate,
		"eligible_date":           m.EligibleDate,
		"cancelled_date":          m.CancelledDate,
		"agreement_signed_at":     m.AgreementSignedAt,
		"payer_member_id":         m.PayerMemberID,
		"auto_pay_enabled":        m.AutoPayEnabled,
		"stripe_subscription_id":  m.StripeSubscriptionID,
		"stripe_customer_id":      m.StripeCustomerID,
		"subscription_status":     m.SubscriptionStatus,
		"payment_method_details":  m.PaymentMethodDetails,
		"version":                 m.Version + 1,
		"updated_at":              time.Now().UTC(),
	}
}

func (r *repository) ListLapseCandidates(ctx context.Context, orgID uuid.UUID, dueOnOrBefore time.Time, after uuid.UUID, limit int) ([]models.Membership, error) {
	return r.page(r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where("status IN ?", []enums.MembershipStatus{enums.MembershipStatusWaitingPeriod, enums.MembershipStatusActive}).
		Where("next_payment_due IS NOT NULL AND next_payment_due <= ?", dueOnOrBefore), after, limit)
}

// ListCancelCandidates returns lapsed memberships whose last payment (or due
// date, or creation) is on or before unpaidSince.
func (r *repository) ListCancelCandidates(ctx context.Context, orgID uuid.UUID, unpaidSince time.Time, after uuid.UUID, limit int) ([]models.Membership, error) {
	return r.page(r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where("status = ?", enums.MembershipStatusLapsed).
		Where("COALESCE(last_payment_date, next_payment_due, created_at) <= ?", unpaidSince), after, limit)
}

// ListNeedingInvoice returns past-due memberships without auto-pay that have no
// open dues payment awaiting settlement.
func (r *repository) ListNeedingInvoice(ctx context.Context, orgID uuid.UUID, dueOnOrBefore time.Time, after uuid.UUID, limit int) ([]models.Membership, error) {
	return r.page(r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where("status IN ?", []enums.MembershipStatus{
			enums.MembershipStatusWaitingPeriod,
			enums.MembershipStatusActive,
			enums.MembershipStatusLapsed,
		}).
		Where("auto_pay_enabled = ?", false).
		Where("next_payment_due IS NOT NULL AND next_payment_due <= ?", dueOnOrBefore).
		Where(`NOT EXISTS (SELECT 1 FROM payments p WHERE p.membership_id = memberships.id AND p.status = ? AND p.type IN ?)`,
			enums.PaymentStatusPending, []enums.PaymentType{enums.PaymentTypeDues, enums.PaymentTypeBackDues}), after, limit)
}

func (r *repository) page(query *gorm.DB, after uuid.UUID, limit int) ([]models.Membership, error) {
	if limit <= 0 {
		limit = 100
	}
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	var rows []models.Membership
	if err := query.Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
