package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/api/middleware"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
)

func organizationID(r *http.Request) (uuid.UUID, error) {
	orgID, ok := middleware.OrganizationIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "organization context missing")
	}
	return orgID, nil
}

func chiParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}
