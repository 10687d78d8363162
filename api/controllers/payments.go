package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/api/middleware"
	"github.com/angelmondragon/duesengine/api/responses"
	"github.com/angelmondragon/duesengine/api/validators"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

type recordPaymentRequest struct {
	Type             string     `json:"type" validate:"required,payment_type"`
	Method           string     `json:"method" validate:"required,payment_method"`
	AmountCents      int64      `json:"amount_cents" validate:"min=0"`
	MonthsCredited   int        `json:"months_credited" validate:"min=0,max=120"`
	MemberID         *uuid.UUID `json:"member_id,omitempty"`
	Reference        string     `json:"reference,omitempty" validate:"max=255"`
	Notes            string     `json:"notes,omitempty" validate:"max=2000"`
	PendingPaymentID *uuid.UUID `json:"pending_payment_id,omitempty"`
}

type previewPaymentRequest struct {
	Type           string `json:"type" validate:"required,payment_type"`
	Method         string `json:"method" validate:"required,payment_method"`
	AmountCents    int64  `json:"amount_cents" validate:"min=0"`
	MonthsCredited int    `json:"months_credited" validate:"min=0,max=120"`
}

type remindersRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

func PaymentRecord(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		membershipID, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := payments.RecordInput{
			OrganizationID:   orgID,
			MembershipID:     membershipID,
			Type:             enums.PaymentType(payload.Type),
			Method:           enums.PaymentMethod(payload.Method),
			AmountCents:      payload.AmountCents,
			MonthsCredited:   payload.MonthsCredited,
			Reference:        validators.SanitizeString(payload.Reference, 255),
			Notes:            validators.SanitizeString(payload.Notes, 2000),
			RecordedBy:       middleware.ActorIDFromContext(r.Context()),
			PendingPaymentID: payload.PendingPaymentID,
		}
		if payload.MemberID != nil {
			input.MemberID = *payload.MemberID
		}

		result, err := svc.Record(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func PaymentPreview(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		membershipID, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload previewPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		calc, err := svc.Preview(r.Context(), payments.PreviewInput{
			OrganizationID: orgID,
			MembershipID:   membershipID,
			Type:           enums.PaymentType(payload.Type),
			Method:         enums.PaymentMethod(payload.Method),
			AmountCents:    payload.AmountCents,
			MonthsCredited: payload.MonthsCredited,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, calc)
	}
}

func PaymentList(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		membershipID, err := validators.ParseUUIDParam(r, "membershipId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), payments.ListInput{
			OrganizationID: orgID,
			MembershipID:   membershipID,
			Limit:          limit,
			Cursor:         r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func PaymentSetReminders(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload remindersRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SetRemindersPaused(r.Context(), orgID, paymentID, *payload.Paused)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func PaymentRefund(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orgID, err := organizationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.MarkRefunded(r.Context(), orgID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
