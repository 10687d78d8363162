package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/api/middleware"
	"github.com/angelmondragon/duesengine/api/responses"
	"github.com/angelmondragon/duesengine/api/validators"
	"github.com/angelmondragon/duesengine/internal/onboarding"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

type startOnboardingRequest struct {
	MembershipID         uuid.UUID `json:"membership_id" validate:"required"`
	Method               string    `json:"method" validate:"required,onboarding_method"`
	IncludeEnrollmentFee bool      `json:"include_enrollment_fee"`
}

type markInvitePaidRequest struct {
	Part      string `json:"part" validate:"required,oneof=dues enrollment_fee"`
	Method    string `json:"method" validate:"required,payment_method"`
	Reference string `json:"reference,omitempty" validate:"max=255"`
	Notes     string `json:"notes,omitempty" validate:"max=2000"`
}

// writeSagaResult answers 201 when every step ran and 202 when a step needs a retry.
func writeSagaResult(w http.ResponseWriter, result *onboarding.Result, created bool) {
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	if result.Failed() {
		status = http.StatusAccepted
	}
	responses.WriteSuccessStatus(w, status, result)
}

func OnboardingStart(svc onboarding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload startOnboardingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Start(r.Context(), onboarding.StartInput{
			OrganizationID:       orgID,
			MembershipID:         payload.MembershipID,
			Method:               enums.OnboardingMethod(payload.Method),
			IncludeEnrollmentFee: payload.IncludeEnrollmentFee,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSagaResult(w, result, true)
	}
}

func OnboardingRetryStep(svc onboarding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inviteID, err := validators.ParseUUIDParam(r, "inviteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		step, err := enums.ParseOnboardingStep(chiParam(r, "step"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid onboarding step"))
			return
		}

		result, err := svc.RetryStep(r.Context(), orgID, inviteID, step)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSagaResult(w, result, false)
	}
}

func OnboardingMarkPaid(svc onboarding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inviteID, err := validators.ParseUUIDParam(r, "inviteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload markInvitePaidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.MarkPaid(r.Context(), onboarding.MarkPaidInput{
			OrganizationID: orgID,
			InviteID:       inviteID,
			Part:           enums.PaymentType(payload.Part),
			Method:         enums.PaymentMethod(payload.Method),
			RecordedBy:     middleware.ActorIDFromContext(r.Context()),
			Reference:      validators.SanitizeString(payload.Reference, 255),
			Notes:          validators.SanitizeString(payload.Notes, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
