package onboarding

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

// Repository persists onboarding invites.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invite *models.OnboardingInvite) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.OnboardingInvite, error)
	FindForUpdate(ctx context.Context, orgID, id uuid.UUID) (*models.OnboardingInvite, error)
	FindPendingByMembership(ctx context.Context, orgID, membershipID uuid.UUID) (*models.OnboardingInvite, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.OnboardingInvite, error)
	Update(ctx context.Context, invite *models.OnboardingInvite) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an invite repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invite *models.OnboardingInvite) error {
	return r.db.WithContext(ctx).Create(invite).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.OnboardingInvite, error) {
	return r.first(r.db.WithContext(ctx).Where("organization_id = ? AND id = ?", orgID, id))
}

func (r *repository) FindForUpdate(ctx context.Context, orgID, id uuid.UUID) (*models.OnboardingInvite, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND id = ?", orgID, id))
}

func (r *repository) FindPendingByMembership(ctx context.Context, orgID, membershipID uuid.UUID) (*models.OnboardingInvite, error) {
	return r.first(r.db.WithContext(ctx).
		Where("organization_id = ? AND membership_id = ? AND status = ?", orgID, membershipID, enums.OnboardingInviteStatusPending))
}

func (r *repository) first(query *gorm.DB) (*models.OnboardingInvite, error) {
	var invite models.OnboardingInvite
	if err := query.First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invite, nil
}

// ListExpired returns pending invites whose expiry is before now, across organizations.
func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.OnboardingInvite, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.OnboardingInvite
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.OnboardingInviteStatusPending, now).
		Order("expires_at").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, invite *models.OnboardingInvite) error {
	return r.db.WithContext(ctx).
		Model(&models.OnboardingInvite{}).
		Where("id = ?", invite.ID).
		Updates(map[string]any{
			"status":              invite.Status,
			"dues_paid":           invite.DuesPaid,
			"enrollment_fee_paid": invite.EnrollmentFeePaid,
			"setup_url":           invite.SetupURL,
			"email_sent_at":       invite.EmailSentAt,
			"completed_at":        invite.CompletedAt,
			"updated_at":          time.Now().UTC(),
		}).Error
}
