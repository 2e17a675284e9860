// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package tasks runs ephemeral background jobs on a cron-style schedule.
//
// Tasks report progress through a Handle and can be monitored while they
// run. They are deliberately not persisted: a daemon restart forgets all
// in-flight and completed task records.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTerminated is the distinguished cancellation result. Tasks observing it
// at a checkpoint may clean up but must return it unchanged.
var ErrTerminated = errors.New("task terminated")

// Status is the lifecycle state of one task run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusTerminated
}

// Task is one unit of schedulable work.
type Task interface {
	// Name identifies the task type; runs of the same name are mutually
	// exclusive.
	Name() string
	// Run does the work. Implementations should call h.SetProgress (or
	// h.Checkpoint) at suspension points and propagate ErrTerminated.
	Run(ctx context.Context, h *Handle) error
}

// Handle is the observable record of one task run.
type Handle struct {
	ID   string
	Name string

	mu       sync.Mutex
	status   Status
	summary  string
	done     int
	total    int
	created  time.Time
	modified time.Time

	now func() time.Time
}

// NewHandle creates a queued handle for a run of the named task.
func NewHandle(name string) *Handle {
	h := &Handle{
		ID:     uuid.NewString(),
		Name:   name,
		status: StatusQueued,
		now:    time.Now,
	}
	h.created = h.now()
	h.modified = h.created
	return h
}

// Checkpoint returns ErrTerminated once ctx is cancelled, nil otherwise.
// Long-running tasks call it between units of work.
func (h *Handle) Checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrTerminated
	default:
		return nil
	}
}

// SetProgress records progress and doubles as a cancellation checkpoint.
// An empty summary keeps the previous one.
func (h *Handle) SetProgress(ctx context.Context, done, total int, summary string) error {
	h.mu.Lock()
	h.done = done
	h.total = total
	h.modified = h.now()
	if summary != "" {
		h.summary = summary
	}
	h.mu.Unlock()

	return h.Checkpoint(ctx)
}

func (h *Handle) setStatus(s Status, summary string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = s
	h.modified = h.now()
	if summary != "" {
		h.summary = summary
	}
}

// Progress is an advisory snapshot for monitoring surfaces.
type Progress struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Summary   string        `json:"summary,omitempty"`
	Done      int           `json:"done"`
	Total     int           `json:"total"`
	Percent   int           `json:"percent"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Created   time.Time     `json:"created"`
	Modified  time.Time     `json:"modified"`
}

// Snapshot derives percent and runtime estimates from the raw counters.
// Remaining time extrapolates from elapsed at the current completion rate,
// rounding percent up to 1 to avoid division by zero.
func (h *Handle) Snapshot() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := Progress{
		ID:       h.ID,
		Name:     h.Name,
		Status:   h.status,
		Summary:  h.summary,
		Done:     h.done,
		Total:    h.total,
		Created:  h.created,
		Modified: h.modified,
	}

	if h.total > 0 {
		p.Percent = h.done * 100 / h.total
	}
	p.Elapsed = h.now().Sub(h.created)
	atLeastOne := p.Percent
	if atLeastOne < 1 {
		atLeastOne = 1
	}
	p.Remaining = time.Duration(float64(p.Elapsed) / float64(atLeastOne) * float64(100-atLeastOne))
	return p
}

// StatusNow returns the current status.
func (h *Handle) StatusNow() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}
