package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/duesengine/internal/overdue"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

const (
	overdueSweepJobName = "overdue_sweep"
	inviteExpiryJobName = "invite_expiry"
)

type sweeper interface {
	Sweep(ctx context.Context, asOf time.Time) (*overdue.SweepResult, error)
}

type sweepRecorder interface {
	Remember(ctx context.Context, result *overdue.SweepResult) error
}

// OverdueSweepJobParams configures the nightly sweep job.
type OverdueSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
	// Recorder, when set, stores the result so the HTTP trigger can replay it.
	Recorder sweepRecorder
	Now      func() time.Time
}

type overdueSweepJob struct {
	logg     *logger.Logger
	sweeper  sweeper
	recorder sweepRecorder
	now      func() time.Time
}

// NewOverdueSweepJob wraps the overdue sweep as a cron job.
func NewOverdueSweepJob(params OverdueSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &overdueSweepJob{logg: params.Logger, sweeper: params.Sweeper, recorder: params.Recorder, now: now}, nil
}

func (j *overdueSweepJob) Name() string { return overdueSweepJobName }

// Run sweeps as of today. Per-membership failures are in the result and
// already logged; only an aborted sweep fails the job.
func (j *overdueSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx, j.now())
	if err != nil {
		return fmt.Errorf("overdue sweep: %w", err)
	}
	if len(result.Failures) > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "failures", len(result.Failures)), "overdue sweep completed with failures")
	}
	if j.recorder != nil {
		if err := j.recorder.Remember(ctx, result); err != nil {
			j.logg.Error(ctx, "failed to cache sweep result", err)
		}
	}
	return nil
}

type inviteExpirer interface {
	ExpireInvites(ctx context.Context, now time.Time) (int, error)
}

// InviteExpiryJobParams configures the invite expiry job.
type InviteExpiryJobParams struct {
	Logger  *logger.Logger
	Expirer inviteExpirer
	Now     func() time.Time
}

type inviteExpiryJob struct {
	logg    *logger.Logger
	expirer inviteExpirer
	now     func() time.Time
}

// NewInviteExpiryJob cancels onboarding invites past their expiry.
func NewInviteExpiryJob(params InviteExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("invite expirer required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &inviteExpiryJob{logg: params.Logger, expirer: params.Expirer, now: now}, nil
}

func (j *inviteExpiryJob) Name() string { return inviteExpiryJobName }

func (j *inviteExpiryJob) Run(ctx context.Context) error {
	n, err := j.expirer.ExpireInvites(ctx, j.now())
	if err != nil {
		return err
	}
	if n > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", n), "onboarding invites expired")
	}
	return nil
}
