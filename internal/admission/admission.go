// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package admission validates new recording requests against physical tuner
// capacity before they enter the ledger.
package admission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/dvrd/internal/log"
	"github.com/ManuGH/dvrd/internal/metrics"
	"github.com/ManuGH/dvrd/internal/model"
	"github.com/ManuGH/dvrd/internal/store"
)

var (
	// ErrInvalidWindow rejects degenerate windows (start >= stop).
	ErrInvalidWindow = errors.New("start must occur before stop")
	// ErrProgramEnded rejects recordings for airings already over.
	ErrProgramEnded = errors.New("program has ended")
)

// CapacityError names the tuner whose capacity the request would exceed.
type CapacityError struct {
	TunerID  string
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("cannot exceed tuner count: tuner %s has %d tuner(s), all of them in use at the requested time", e.TunerID, e.Capacity)
}

// Ledger is the transactional persistence the checker needs. Implemented by
// store.Store.
type Ledger interface {
	GetProgram(ctx context.Context, id string) (*model.Program, error)
	TunerForProgram(ctx context.Context, programID string) (*model.Tuner, error)
	FindOverlapping(ctx context.Context, tx *sql.Tx, start, stop time.Time) ([]store.OverlapRow, error)
	CreateRecordingTx(ctx context.Context, tx *sql.Tx, rec *model.Recording) error
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Request asks for a recording of one program, optionally overriding the
// program's own air window.
type Request struct {
	ProgramID string
	Start     time.Time // zero: use the program's start
	Stop      time.Time // zero: use the program's stop
}

// Checker admits recording requests.
type Checker struct {
	ledger Ledger
	logger zerolog.Logger
	now    func() time.Time
}

// NewChecker returns an admission checker over the given ledger.
func NewChecker(ledger Ledger) *Checker {
	return &Checker{
		ledger: ledger,
		logger: log.WithComponent("admission"),
		now:    time.Now,
	}
}

// Admit validates req and, if every contended tuner stays within capacity,
// creates the recording. The overlap read and the insert run in one
// immediate transaction so two concurrent requests cannot both pass the
// check for the same slot.
//
// The check is advisory at creation time only; it is not re-validated by
// later scheduling passes.
func (c *Checker) Admit(ctx context.Context, req Request) (*model.Recording, error) {
	prog, err := c.ledger.GetProgram(ctx, req.ProgramID)
	if err != nil {
		return nil, err
	}

	start, stop := req.Start, req.Stop
	if start.IsZero() {
		start = prog.Start
	}
	if stop.IsZero() {
		stop = prog.Stop
	}

	if !start.Before(stop) {
		metrics.IncAdmissionRejection("window")
		return nil, ErrInvalidWindow
	}
	if stop.Before(c.now()) {
		metrics.IncAdmissionRejection("ended")
		return nil, ErrProgramEnded
	}

	tuner, err := c.ledger.TunerForProgram(ctx, req.ProgramID)
	if err != nil {
		return nil, err
	}

	rec := &model.Recording{
		ProgramID: req.ProgramID,
		Start:     start,
		Stop:      stop,
		Status:    model.StatusNone,
	}

	err = c.ledger.InTx(ctx, func(tx *sql.Tx) error {
		overlapping, err := c.ledger.FindOverlapping(ctx, tx, start, stop)
		if err != nil {
			return err
		}
		if err := checkCapacity(tuner, overlapping); err != nil {
			return err
		}
		return c.ledger.CreateRecordingTx(ctx, tx, rec)
	})
	if err != nil {
		var capErr *CapacityError
		if errors.As(err, &capErr) {
			metrics.IncAdmissionRejection("capacity")
			c.logger.Info().Str("program", req.ProgramID).Str("tuner", capErr.TunerID).
				Int("capacity", capErr.Capacity).Msg("recording rejected, tuner capacity exceeded")
		}
		return nil, err
	}

	c.logger.Info().Str("recording", rec.ID).Str("program", req.ProgramID).Msg("recording admitted")
	return rec, nil
}

// checkCapacity groups the overlapping recordings by tuner and verifies no
// tuner's concurrent demand exceeds its capacity. The candidate itself
// counts as one on its own tuner.
func checkCapacity(candidate *model.Tuner, overlapping []store.OverlapRow) error {
	demand := map[string]int{candidate.ID: 1}
	capacity := map[string]int{candidate.ID: candidate.TunerCount}

	for _, row := range overlapping {
		demand[row.TunerID]++
		capacity[row.TunerID] = row.TunerCount

		if demand[row.TunerID] > capacity[row.TunerID] {
			return &CapacityError{TunerID: row.TunerID, Capacity: row.TunerCount}
		}
	}
	return nil
}
