// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recorder

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/dvrd/internal/capture"
	"github.com/ManuGH/dvrd/internal/log"
	"github.com/ManuGH/dvrd/internal/metrics"
	"github.com/ManuGH/dvrd/internal/model"
)

// Ledger is the recording persistence the controller mutates. All status/pid
// transitions go through UpdateRecording's atomic partial update.
type Ledger interface {
	UpdateRecording(ctx context.Context, id string, patch model.RecordingPatch) error
	DeleteRecording(ctx context.Context, id string) error
	GetProgram(ctx context.Context, id string) (*model.Program, error)
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	GetMedia(ctx context.Context, id string) (*model.Media, error)
}

// ShowFactory resolves or creates the media artifact a recording writes into.
type ShowFactory interface {
	GetOrCreateShowForProgram(ctx context.Context, programID string) (*model.Media, error)
}

// Supervisor is the process lifecycle the controller drives. Implemented by
// capture.Supervisor.
type Supervisor interface {
	Resolve(pid *int) (*capture.Proc, error)
	Spawn(spec capture.SpawnSpec) (int, error)
	Terminate(proc *capture.Proc, timeout time.Duration) (bool, error)
}

// Controller decides, for one recording at a time, whether a capture process
// must be started, kept alive, or stopped. It exclusively owns status/pid
// transitions.
type Controller struct {
	ledger      Ledger
	shows       ShowFactory
	sup         Supervisor
	stopTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewController wires a controller. stopTimeout bounds the graceful-stop wait.
func NewController(ledger Ledger, shows ShowFactory, sup Supervisor, stopTimeout time.Duration) *Controller {
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Controller{
		ledger:      ledger,
		shows:       shows,
		sup:         sup,
		stopTimeout: stopTimeout,
		logger:      log.WithComponent("recorder"),
		now:         time.Now,
	}
}

// Control runs one evaluation of the state machine for rec. Any failure while
// controlling this recording is absorbed here: logged, recorded as status
// error, and never propagated, so one broken recording cannot starve the rest
// of the batch.
func (c *Controller) Control(ctx context.Context, rec *model.Recording) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("recording", rec.ID).Interface("panic", r).Msg("panic while controlling recording")
			c.markError(ctx, rec)
		}
	}()

	now := c.now()

	switch {
	case rec.IsPast(now):
		// Stop first to free up tuners for contending recordings.
		if err := c.Stop(ctx, rec); err != nil {
			c.logger.Error().Err(err).Str("recording", rec.ID).Msg("stop failed")
			c.markError(ctx, rec)
		}

	case rec.IsNow(now):
		if err := c.ensureRunning(ctx, rec); err != nil {
			c.logger.Error().Err(err).Str("recording", rec.ID).Msg("start failed")
			c.markError(ctx, rec)
		}

	default:
		// Future window: nothing to do.
	}
}

// ensureRunning is idempotent: when a live process is already supervised it
// does nothing; otherwise (never started, or died) it starts a fresh capture.
func (c *Controller) ensureRunning(ctx context.Context, rec *model.Recording) error {
	proc, err := c.sup.Resolve(rec.PID)
	if err != nil {
		return err
	}
	if proc != nil {
		return nil
	}

	restart := rec.PID != nil
	if restart {
		// Stored pid is stale; reconcile before starting over.
		if err := c.ledger.UpdateRecording(ctx, rec.ID, model.RecordingPatch{ClearPID: true}); err != nil {
			return err
		}
		rec.PID = nil
	}

	return c.start(ctx, rec, restart)
}

func (c *Controller) start(ctx context.Context, rec *model.Recording, restart bool) error {
	show, err := c.shows.GetOrCreateShowForProgram(ctx, rec.ProgramID)
	if err != nil {
		return fmt.Errorf("resolve show: %w", err)
	}
	if err := os.MkdirAll(show.Path, 0o750); err != nil {
		return fmt.Errorf("ensure show directory: %w", err)
	}

	prog, err := c.ledger.GetProgram(ctx, rec.ProgramID)
	if err != nil {
		return err
	}
	channel, err := c.ledger.GetChannel(ctx, prog.ChannelID)
	if err != nil {
		return err
	}

	outPath, err := NextSegment(show.Path)
	if err != nil {
		return err
	}

	pid, err := c.sup.Spawn(capture.SpawnSpec{
		StreamURL:  channel.Stream,
		OutputPath: outPath,
		Poster:     strings.HasSuffix(outPath, segmentPrefix+"0"+segmentExt),
	})
	if err != nil {
		return err
	}

	// All-or-nothing persistence of the transition. A crash between spawn and
	// this update leaves an orphan that the next pass reconciles via
	// OS-level process lookup.
	recording := model.StatusRecording
	err = c.ledger.UpdateRecording(ctx, rec.ID, model.RecordingPatch{
		Status: &recording,
		PID:    &pid,
		ShowID: &show.ID,
	})
	if err != nil {
		return fmt.Errorf("persist start transition: %w", err)
	}
	rec.Status = recording
	rec.PID = &pid
	rec.ShowID = &show.ID

	if restart {
		metrics.IncTransition("restarted")
	} else {
		metrics.IncTransition("started")
	}
	c.logger.Info().Str("recording", rec.ID).Int("pid", pid).Str("output", outPath).Bool("restart", restart).Msg("capture started")
	return nil
}

// Stop terminates any live capture, persists the done transition and runs
// finalization. It is idempotent and also used as the best-effort stop before
// a recording row is deleted.
//
// When termination cannot be confirmed within the timeout the pid is cleared
// anyway; liveness checks against it are foreclosed from then on, and the
// capture's process group is what guarantees eventual death.
func (c *Controller) Stop(ctx context.Context, rec *model.Recording) error {
	proc, err := c.sup.Resolve(rec.PID)
	if err != nil {
		return err
	}
	if proc != nil {
		exited, err := c.sup.Terminate(proc, c.stopTimeout)
		if err != nil {
			return err
		}
		if !exited {
			c.logger.Warn().Str("recording", rec.ID).Int("pid", proc.PID).
				Msg("capture did not exit within stop timeout, proceeding")
		}
	}

	done := model.StatusDone
	err = c.ledger.UpdateRecording(ctx, rec.ID, model.RecordingPatch{
		Status:   &done,
		ClearPID: true,
	})
	if err != nil {
		return fmt.Errorf("persist stop transition: %w", err)
	}
	rec.Status = done
	rec.PID = nil
	metrics.IncTransition("stopped")

	c.finalize(ctx, rec)
	return nil
}

// Remove deletes a recording from the ledger, first stopping any live
// capture. The stop is best effort: a termination timeout or signal failure
// does not block removal.
func (c *Controller) Remove(ctx context.Context, rec *model.Recording) error {
	proc, err := c.sup.Resolve(rec.PID)
	if err == nil && proc != nil {
		if exited, err := c.sup.Terminate(proc, c.stopTimeout); err != nil || !exited {
			c.logger.Warn().Str("recording", rec.ID).Int("pid", proc.PID).
				AnErr("terminate", err).Msg("capture not confirmed dead before removal")
		}
	}
	return c.ledger.DeleteRecording(ctx, rec.ID)
}

// finalize concatenates the numbered partial segments into the canonical
// file. Failures are logged, never fatal to the stop transition.
func (c *Controller) finalize(ctx context.Context, rec *model.Recording) {
	if rec.ShowID == nil {
		return
	}
	show, err := c.ledger.GetMedia(ctx, *rec.ShowID)
	if err != nil {
		c.logger.Error().Err(err).Str("recording", rec.ID).Msg("finalize: show lookup failed")
		return
	}
	if err := Finalize(show.Path); err != nil {
		c.logger.Error().Err(err).Str("recording", rec.ID).Str("path", show.Path).Msg("finalize failed")
	}
}

func (c *Controller) markError(ctx context.Context, rec *model.Recording) {
	errStatus := model.StatusError
	err := c.ledger.UpdateRecording(ctx, rec.ID, model.RecordingPatch{
		Status:   &errStatus,
		ClearPID: true,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("recording", rec.ID).Msg("failed to persist error status")
		return
	}
	rec.Status = errStatus
	rec.PID = nil
	metrics.IncTransition("errored")
}
