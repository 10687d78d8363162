package members

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/pkg/db/models"
)

// Repository handles member persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Member, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Member, error)
	UpdateProcessorRefs(ctx context.Context, member *models.Member) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a member repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Member, error) {
	return r.first(r.db.WithContext(ctx).Where("organization_id = ? AND id = ?", orgID, id))
}

func (r *repository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Member, error) {
	return r.first(r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID))
}

func (r *repository) first(query *gorm.DB) (*models.Member, error) {
	var member models.Member
	if err := query.First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// UpdateProcessorRefs stores the member's processor customer and default card.
func (r *repository) UpdateProcessorRefs(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", member.ID).
		Updates(map[string]any{
			"stripe_customer_id":        member.StripeCustomerID,
			"default_payment_method_id": member.DefaultPaymentMethodID,
		}).Error
}
