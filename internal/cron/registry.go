package cron

import (
	"context"
	"errors"
	"fmt"

	robfig "github.com/robfig/cron/v3"
)

// Job is one unit of work the cron worker runs, such as the overdue sweep.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job      Job
	schedule robfig.Schedule // nil runs every tick
}

// Registry holds jobs by unique name. Names key slot claims and last-run
// bookkeeping, so two jobs may not share one.
type Registry struct {
	entries []entry
	names   map[string]struct{}
}

// NewRegistry registers jobs to run on every tick. It panics on a nil job or
// a duplicate name since both are wiring mistakes.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: make(map[string]struct{})}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a job that runs on every tick.
func (r *Registry) Register(job Job) error {
	return r.add(job, nil)
}

// RegisterScheduled adds a job gated by a five-field cron expression, e.g.
// "0 6 * * *" for the daily sweep.
func (r *Registry) RegisterScheduled(job Job, spec string) error {
	if job == nil {
		return errors.New("cron: nil job")
	}
	schedule, err := robfig.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("cron: schedule for %s: %w", job.Name(), err)
	}
	return r.add(job, schedule)
}

func (r *Registry) add(job Job, schedule robfig.Schedule) error {
	if job == nil {
		return errors.New("cron: nil job")
	}
	name := job.Name()
	if name == "" {
		return errors.New("cron: job name required")
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron: job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, entry{job: job, schedule: schedule})
	return nil
}

// Names lists registered jobs in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.job.Name())
	}
	return names
}

func (r *Registry) snapshot() []entry {
	return append([]entry(nil), r.entries...)
}
