package memberships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/internal/billing"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes membership reads and non-payment mutations.
type Service interface {
	Get(ctx context.Context, orgID, membershipID uuid.UUID) (*View, error)
	ChangeBillingFrequency(ctx context.Context, orgID, membershipID uuid.UUID, frequency enums.BillingFrequency) (*FrequencyChange, error)
	RecordAgreementSigned(ctx context.Context, orgID, membershipID uuid.UUID, signedAt time.Time) (*View, error)
}

// ServiceParams groups dependencies for the membership service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	repo     Repository
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a membership service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) Get(ctx context.Context, orgID, membershipID uuid.UUID) (*View, error) {
	m, err := s.repo.FindByID(ctx, orgID, membershipID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if m == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	view := NewView(*m)
	return &view, nil
}

// ChangeBillingFrequency switches cadence without proration: the next due date
// is recomputed from the last payment (or now) with the new frequency.
func (s *service) ChangeBillingFrequency(ctx context.Context, orgID, membershipID uuid.UUID, frequency enums.BillingFrequency) (*FrequencyChange, error) {
	if !frequency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid billing frequency %q", frequency))
	}

	var result *FrequencyChange
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		m, err := repo.FindForUpdate(ctx, orgID, membershipID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
		}
		if m == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		if m.Status == enums.MembershipStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "membership is cancelled")
		}
		if m.HasActiveSubscription() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "remove the payer subscription before changing billing frequency")
		}

		result = &FrequencyChange{PreviousFrequency: m.BillingFrequency, NewFrequency: frequency, NextPaymentDue: m.NextPaymentDue}
		if m.BillingFrequency == frequency {
			return nil
		}

		from := s.now()
		if m.LastPaymentDate != nil {
			from = *m.LastPaymentDate
		}
		next := billing.NextPaymentDue(from, frequency, m.BillingAnniversaryDay)
		m.BillingFrequency = frequency
		m.NextPaymentDue = &next
		if err := repo.Save(ctx, m); err != nil {
			return MapSaveError(err)
		}
		result.NextPaymentDue = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil && result.PreviousFrequency != result.NewFrequency {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"membership_id":      membershipID.String(),
			"previous_frequency": result.PreviousFrequency,
			"new_frequency":      result.NewFrequency,
		})
		s.logg.Info(logCtx, "billing frequency changed")
	}
	return result, nil
}

// RecordAgreementSigned stores the signature timestamp once; later calls keep the original.
func (s *service) RecordAgreementSigned(ctx context.Context, orgID, membershipID uuid.UUID, signedAt time.Time) (*View, error) {
	if signedAt.IsZero() {
		signedAt = s.now()
	}
	var view View
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		m, err := repo.FindForUpdate(ctx, orgID, membershipID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
		}
		if m == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		if m.AgreementSignedAt == nil {
			signed := signedAt.UTC()
			m.AgreementSignedAt = &signed
			if err := repo.Save(ctx, m); err != nil {
				return MapSaveError(err)
			}
		}
		view = NewView(*m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// MapSaveError converts membership save failures into API errors.
func MapSaveError(err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "membership was updated by another request")
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save membership")
}
