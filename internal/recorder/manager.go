// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/dvrd/internal/log"
	"github.com/ManuGH/dvrd/internal/metrics"
	"github.com/ManuGH/dvrd/internal/model"
	"github.com/ManuGH/dvrd/internal/tasks"
)

// PassLedger is what one scheduling pass reads and purges.
type PassLedger interface {
	ListActiveRecordings(ctx context.Context, includeError bool) ([]*model.Recording, error)
	PurgeDoneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ManagerConfig tunes the periodic recording pass.
type ManagerConfig struct {
	// Purge removes done recordings older than PurgeAfter past their stop.
	Purge      bool
	PurgeAfter time.Duration
	// RetryError includes error-status recordings in the work set, giving
	// failed starts another chance on every pass.
	RetryError bool
}

// Manager is the periodic task controlling every non-terminal recording.
type Manager struct {
	ledger     PassLedger
	controller *Controller
	cfg        ManagerConfig
	now        func() time.Time
}

// NewManager wires the recording pass.
func NewManager(ledger PassLedger, controller *Controller, cfg ManagerConfig) *Manager {
	return &Manager{
		ledger:     ledger,
		controller: controller,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Name implements tasks.Task.
func (m *Manager) Name() string { return "recording-manager" }

// Run executes one scheduling pass: purge expired done recordings, then hand
// every active recording to the controller. Controller failures are isolated
// per recording; only cancellation aborts the pass.
func (m *Manager) Run(ctx context.Context, h *tasks.Handle) error {
	started := m.now()
	defer func() {
		metrics.ObservePassDuration(m.now().Sub(started).Seconds())
	}()

	// Pass-scoped logger carrying the task id of this run.
	logger := log.WithComponentFromContext(ctx, "recorder.manager")

	if m.cfg.Purge {
		cutoff := m.now().Add(-m.cfg.PurgeAfter)
		n, err := m.ledger.PurgeDoneBefore(ctx, cutoff)
		if err != nil {
			// Not critical for the pass, but must be visible.
			logger.Error().Err(err).Msg("purge failed")
		} else if n > 0 {
			logger.Debug().Int64("purged", n).Time("cutoff", cutoff).Msg("purged expired recordings")
			for ; n > 0; n-- {
				metrics.IncTransition("purged")
			}
		}
	}

	recs, err := m.ledger.ListActiveRecordings(ctx, m.cfg.RetryError)
	if err != nil {
		return fmt.Errorf("list active recordings: %w", err)
	}
	logger.Debug().Int("count", len(recs)).Msg("controlling active recordings")

	live := 0
	for i, rec := range recs {
		if err := h.SetProgress(ctx, i, len(recs), fmt.Sprintf("controlling %d recording(s)", len(recs))); err != nil {
			return err
		}
		m.controller.Control(ctx, rec)
		if rec.Status == model.StatusRecording {
			live++
		}
	}
	metrics.SetActiveRecordings(live)

	return h.SetProgress(ctx, len(recs), max(len(recs), 1), "pass complete")
}
