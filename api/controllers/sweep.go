package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/duesengine/api/responses"
	"github.com/angelmondragon/duesengine/api/validators"
	"github.com/angelmondragon/duesengine/internal/overdue"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

type sweepCache interface {
	Lookup(ctx context.Context, day time.Time) (*overdue.SweepResult, error)
	Remember(ctx context.Context, result *overdue.SweepResult) error
}

type sweepResponse struct {
	*overdue.SweepResult
	Cached bool `json:"cached"`
}

// BillingSweep runs the overdue sweep for asOf (default today). A day that
// was already swept returns the recorded result unless force=true.
func BillingSweep(svc overdue.Service, cache sweepCache, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweep service unavailable"))
			return
		}

		asOf, provided, err := validators.ParseQueryDate(r, "asOf")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !provided {
			asOf = now()
		}
		force, err := validators.ParseQueryBool(r, "force")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if cache != nil && !force {
			cached, err := cache.Lookup(ctx, asOf)
			if err != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "sweep cache lookup failed; sweeping")
			}
			if cached != nil {
				responses.WriteSuccess(w, sweepResponse{SweepResult: cached, Cached: true})
				return
			}
		}

		result, err := svc.Sweep(ctx, asOf)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if cache != nil {
			if err := cache.Remember(ctx, result); err != nil && logg != nil {
				logg.Error(ctx, "failed to cache sweep result", err)
			}
		}
		responses.WriteSuccess(w, sweepResponse{SweepResult: result})
	}
}
