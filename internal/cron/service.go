package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/metrics"
)

const (
	defaultInterval = time.Minute
	claimTTL        = 48 * time.Hour
)

// claimStore records which scheduled slot a worker already ran, so two
// workers whose ticks straddle a release do not both run the same slot.
type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	LockKey(name string) string
}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Claims   claimStore
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service ticks on Interval and, under Lock, runs every job whose schedule is due.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	claims   claimStore
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
	lastRun  map[string]time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	started := now()
	lastRun := make(map[string]time.Time)
	for _, e := range registry.snapshot() {
		lastRun[e.job.Name()] = started
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		claims:   params.Claims,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
		lastRun:  lastRun,
	}, nil
}

// Run ticks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "cron.cycle_failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "cron.cycle_failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	now := s.now()
	due := s.dueEntries(now)
	if len(due) == 0 {
		return nil
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron.tick_skipped_locked")
		for _, e := range due {
			s.metrics.IncSkipped(e.job.Name())
		}
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", relErr)
		}
	}()

	for _, e := range due {
		name := e.job.Name()
		if e.schedule != nil && !s.claim(ctx, name, e.schedule.Next(s.lastRun[name])) {
			s.lastRun[name] = now
			s.metrics.IncSkipped(name)
			continue
		}
		s.runJob(ctx, e.job)
		s.lastRun[name] = now
	}
	return nil
}

func (s *Service) dueEntries(now time.Time) []entry {
	var due []entry
	for _, e := range s.registry.snapshot() {
		if e.schedule == nil {
			due = append(due, e)
			continue
		}
		if !e.schedule.Next(s.lastRun[e.job.Name()]).After(now) {
			due = append(due, e)
		}
	}
	return due
}

// claim reports whether this worker owns the scheduled slot. Without a
// claim store every due slot is owned.
func (s *Service) claim(ctx context.Context, job string, slot time.Time) bool {
	if s.claims == nil {
		return true
	}
	key := s.claims.LockKey(fmt.Sprintf("cron:%s:%s", job, slot.UTC().Format(time.RFC3339)))
	ok, err := s.claims.SetNX(ctx, key, "1", claimTTL)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "job", job), "cron.claim_failed_running_anyway", err)
		return true
	}
	return ok
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	s.logg.Info(ctx, "cron.job_started")

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(ctx, "cron.job_failed", err)
		return
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(ctx, "cron.job_completed")
}
