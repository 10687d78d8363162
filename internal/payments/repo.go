package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
	"github.com/angelmondragon/duesengine/pkg/pagination"
)

var openDuesTypes = []enums.PaymentType{enums.PaymentTypeDues, enums.PaymentTypeBackDues}

// Repository handles payment ledger persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Payment, error)
	FindForUpdate(ctx context.Context, orgID, id uuid.UUID) (*models.Payment, error)
	FindByStripeInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error)
	ListByMembership(ctx context.Context, orgID, membershipID uuid.UUID, after *pagination.Cursor, limit int) ([]models.Payment, error)
	ListOpenDues(ctx context.Context, orgID, membershipID uuid.UUID) ([]models.Payment, error)
	ListReminderCandidates(ctx context.Context, orgID uuid.UUID, dueOnOrBefore time.Time, after uuid.UUID, limit int) ([]models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("organization_id = ? AND id = ?", orgID, id))
}

func (r *repository) FindForUpdate(ctx context.Context, orgID, id uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND id = ?", orgID, id))
}

func (r *repository) FindByStripeInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("stripe_invoice_id = ?", invoiceID))
}

func (r *repository) first(query *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	if err := query.First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// ListByMembership returns up to limit ledger rows newest first, starting
// strictly after the given keyset position.
func (r *repository) ListByMembership(ctx context.Context, orgID, membershipID uuid.UUID, after *pagination.Cursor, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	q := r.db.WithContext(ctx).
		Where("organization_id = ? AND membership_id = ?", orgID, membershipID)
	if after != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListOpenDues returns pending dues invoices for a membership, oldest due first.
func (r *repository) ListOpenDues(ctx context.Context, orgID, membershipID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND membership_id = ?", orgID, membershipID).
		Where("status = ? AND type IN ?", enums.PaymentStatusPending, openDuesTypes).
		Order("due_date").
		Find(&rows).Error
	return rows, err
}

// ListReminderCandidates pages pending dues invoices that are due and still
// eligible for automatic reminders.
func (r *repository) ListReminderCandidates(ctx context.Context, orgID uuid.UUID, dueOnOrBefore time.Time, after uuid.UUID, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where("status = ? AND type IN ?", enums.PaymentStatusPending, openDuesTypes).
		Where("reminders_paused = ? AND requires_review = ?", false, false).
		Where("due_date IS NOT NULL AND due_date <= ?", dueOnOrBefore)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	var rows []models.Payment
	if err := query.Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Update writes the columns that may change after insert. Amount, type and
// months only move when a pending row is settled.
func (r *repository) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{
			"type":                     payment.Type,
			"status":                   payment.Status,
			"method":                   payment.Method,
			"amount_cents":             payment.AmountCents,
			"months_credited":          payment.MonthsCredited,
			"stripe_fee_cents":         payment.StripeFeeCents,
			"platform_fee_cents":       payment.PlatformFeeCents,
			"total_charged_cents":      payment.TotalChargedCents,
			"net_amount_cents":         payment.NetAmountCents,
			"check_number":             payment.CheckNumber,
			"zelle_transaction_id":     payment.ZelleTransactionID,
			"stripe_payment_intent_id": payment.StripePaymentIntentID,
			"stripe_invoice_id":        payment.StripeInvoiceID,
			"recorded_by":              payment.RecordedBy,
			"notes":                    payment.Notes,
			"paid_at":                  payment.PaidAt,
			"refunded_at":              payment.RefundedAt,
			"reminder_count":           payment.ReminderCount,
			"reminder_sent_at":         payment.ReminderSentAt,
			"reminders_paused":         payment.RemindersPaused,
			"requires_review":          payment.RequiresReview,
			"updated_at":               time.Now().UTC(),
		}).Error
}
