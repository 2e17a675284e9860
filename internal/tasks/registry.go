// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package tasks

import (
	"sort"
	"sync"
	"time"
)

// Registry is the process-wide map of ephemeral task records. Handles are
// inserted when a run is enqueued and removed by PurgeStale once terminal
// for longer than the retention window.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	now func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*Handle),
		now:     time.Now,
	}
}

// Add inserts a handle.
func (r *Registry) Add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
}

// Get returns the handle with the given run ID, or nil.
func (r *Registry) Get(id string) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[id]
}

// List returns snapshots of all known runs, newest first.
func (r *Registry) List() []Progress {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	out := make([]Progress, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out
}

// PurgeStale removes terminal runs without activity inside the retention
// window and reports how many were dropped.
func (r *Registry) PurgeStale(retention time.Duration) int {
	cutoff := r.now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, h := range r.handles {
		snap := h.Snapshot()
		if !snap.Status.Terminal() {
			continue
		}
		lastActivity := snap.Modified
		if lastActivity.IsZero() {
			lastActivity = snap.Created
		}
		if lastActivity.Before(cutoff) {
			delete(r.handles, id)
			purged++
		}
	}
	return purged
}
