// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ManuGH/dvrd/internal/log"
	"github.com/ManuGH/dvrd/internal/metrics"
)

// cron expressions use the classic 5-field form (minute granularity).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type entry struct {
	task     Task
	schedule cron.Schedule
	spec     string
	next     time.Time

	// One lock per task type: if a prior run still holds it when the next
	// tick fires, the new run is skipped, never queued.
	lock sync.Mutex
}

// Runner drives registered tasks on their cron schedules with a single
// active run per task type.
type Runner struct {
	registry *Registry
	logger   zerolog.Logger

	mu      sync.Mutex
	entries []*entry

	tick time.Duration
	now  func() time.Time
}

// NewRunner creates a runner recording runs into registry.
func NewRunner(registry *Registry) *Runner {
	return &Runner{
		registry: registry,
		logger:   log.WithComponent("tasks"),
		tick:     time.Minute,
		now:      time.Now,
	}
}

// Register schedules task under the given 5-field cron spec.
func (r *Runner) Register(spec string, task Task) error {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("cron spec %q for task %s: %w", spec, task.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &entry{
		task:     task,
		schedule: schedule,
		spec:     spec,
		next:     schedule.Next(r.now()),
	})
	return nil
}

// Start runs the scheduling loop until ctx is cancelled. Every-minute tasks
// additionally fire once right away, so they effectively run at startup.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	r.logger.Info().Msg("task runner started")

	r.mu.Lock()
	for _, e := range r.entries {
		if isEveryMinute(e.spec) {
			r.logger.Info().Str("task", e.task.Name()).Msg("running startup task")
			r.fire(ctx, e)
		}
	}
	r.mu.Unlock()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("task runner stopping")
			return
		case <-ticker.C:
			r.runDue(ctx)
		}
	}
}

func (r *Runner) runDue(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.next.After(now) {
			continue
		}
		e.next = e.schedule.Next(now)
		r.fire(ctx, e)
	}
}

// fire launches one run of e in the background, enforcing mutual exclusion
// per task type. The outer recover guarantees a broken task cannot stop the
// runner from ticking.
func (r *Runner) fire(ctx context.Context, e *entry) {
	if !e.lock.TryLock() {
		r.logger.Debug().Str("task", e.task.Name()).Msg("previous run still active, skipping")
		metrics.IncSkippedRun(e.task.Name())
		return
	}

	h := NewHandle(e.task.Name())
	r.registry.Add(h)
	_ = h.SetProgress(ctx, 0, 1, "awaiting execution")

	go func() {
		defer e.lock.Unlock()
		r.runOne(ctx, e.task, h)
	}()
}

func (r *Runner) runOne(ctx context.Context, task Task, h *Handle) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("task", task.Name()).Interface("panic", rec).Msg("task panicked")
			h.setStatus(StatusError, fmt.Sprint(rec))
		}
	}()

	ctx = log.ContextWithTaskID(ctx, h.ID)
	h.setStatus(StatusRunning, "")

	err := task.Run(ctx, h)
	switch {
	case err == nil:
		h.setStatus(StatusDone, "")
	case errors.Is(err, ErrTerminated) || ctx.Err() != nil:
		r.logger.Info().Str("task", task.Name()).Msg("task terminated")
		h.setStatus(StatusTerminated, "")
	default:
		r.logger.Error().Err(err).Str("task", task.Name()).Msg("task failed")
		h.setStatus(StatusError, err.Error())
	}
}

// RunNow fires the task immediately, outside its schedule, still honoring
// the per-type lock. It returns the handle, or nil when the run was skipped.
func (r *Runner) RunNow(ctx context.Context, task Task) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.task.Name() == task.Name() {
			if !e.lock.TryLock() {
				metrics.IncSkippedRun(task.Name())
				return nil
			}
			h := NewHandle(task.Name())
			r.registry.Add(h)
			go func() {
				defer e.lock.Unlock()
				r.runOne(ctx, task, h)
			}()
			return h
		}
	}
	return nil
}

func isEveryMinute(spec string) bool {
	return strings.ReplaceAll(spec, " ", "") == "*****"
}

// CleanupTask purges stale terminal task records from the registry.
type CleanupTask struct {
	Registry  *Registry
	Retention time.Duration
}

// Name implements Task.
func (t *CleanupTask) Name() string { return "task-cleanup" }

// Run implements Task.
func (t *CleanupTask) Run(ctx context.Context, h *Handle) error {
	if err := h.SetProgress(ctx, 0, 1, "purging stale tasks"); err != nil {
		return err
	}
	purged := t.Registry.PurgeStale(t.Retention)
	return h.SetProgress(ctx, 1, 1, fmt.Sprintf("purged %d stale task(s)", purged))
}
