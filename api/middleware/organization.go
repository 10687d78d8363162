package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/api/responses"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

const (
	organizationHeader = "X-Organization-Id"
	actorHeader        = "X-Actor-Id"
)

// OrganizationContext reads the tenant and actor forwarded by the gateway.
// Requests without a tenant are refused.
func OrganizationContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rawOrg := strings.TrimSpace(r.Header.Get(organizationHeader))
			if rawOrg == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "organization context missing"))
				return
			}
			orgID, err := uuid.Parse(rawOrg)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "organization context invalid"))
				return
			}
			ctx = WithOrganizationID(ctx, orgID)
			if logg != nil {
				ctx = logg.WithOrganizationID(ctx, orgID.String())
			}

			if rawActor := strings.TrimSpace(r.Header.Get(actorHeader)); rawActor != "" {
				actorID, err := uuid.Parse(rawActor)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "actor id invalid"))
					return
				}
				ctx = WithActorID(ctx, actorID)
				if logg != nil {
					ctx = logg.WithActorID(ctx, actorID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
