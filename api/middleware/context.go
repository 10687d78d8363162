package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxOrganizationID contextKey = "organization_id"
	ctxActorID        contextKey = "actor_id"
)

// OrganizationIDFromContext returns the tenant forwarded by the gateway.
func OrganizationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxOrganizationID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// ActorIDFromContext returns the acting staff member, or nil for system calls.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(ctxActorID).(uuid.UUID); ok && id != uuid.Nil {
		return &id
	}
	return nil
}

// WithOrganizationID injects the tenant into the context.
func WithOrganizationID(ctx context.Context, orgID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOrganizationID, orgID)
}

func WithActorID(ctx context.Context, actorID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActorID, actorID)
}
