package admission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/dvrd/internal/model"
	"github.com/ManuGH/dvrd/internal/store"
)

type fixture struct {
	store   *store.Store
	checker *Checker
	tuner   *model.Tuner
	channel *model.Channel
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tuner := &model.Tuner{Name: "hdhr", Addr: "10.0.0.2", Model: "HDHR5-4US", TunerCount: capacity}
	require.NoError(t, s.CreateTuner(ctx, tuner))
	ch := &model.Channel{TunerID: tuner.ID, Number: "7.1", Name: "KXYZ", Stream: "http://10.0.0.2:5004/auto/v7.1"}
	require.NoError(t, s.CreateChannel(ctx, ch))

	return &fixture{store: s, checker: NewChecker(s), tuner: tuner, channel: ch}
}

func (f *fixture) program(t *testing.T, start, stop time.Time) *model.Program {
	t.Helper()
	prog := &model.Program{
		ChannelID: f.channel.ID,
		Title:     fmt.Sprintf("Program %d", time.Now().UnixNano()),
		Start:     start,
		Stop:      stop,
	}
	require.NoError(t, f.store.CreateProgram(context.Background(), prog))
	return prog
}

func TestAdmitUsesProgramWindow(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	start := time.Now().UTC().Add(time.Hour)
	prog := f.program(t, start, start.Add(30*time.Minute))

	rec, err := f.checker.Admit(ctx, Request{ProgramID: prog.ID})
	require.NoError(t, err)
	assert.True(t, rec.Start.Equal(prog.Start))
	assert.True(t, rec.Stop.Equal(prog.Stop))
	assert.Equal(t, model.StatusNone, rec.Status)

	stored, err := f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
}

func TestAdmitInvalidWindow(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	start := time.Now().UTC().Add(time.Hour)
	prog := f.program(t, start, start.Add(time.Hour))

	_, err := f.checker.Admit(ctx, Request{ProgramID: prog.ID, Start: start, Stop: start})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = f.checker.Admit(ctx, Request{ProgramID: prog.ID, Start: start.Add(time.Hour), Stop: start})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestAdmitProgramEnded(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	stop := time.Now().UTC().Add(-time.Hour)
	prog := f.program(t, stop.Add(-time.Hour), stop)

	_, err := f.checker.Admit(ctx, Request{ProgramID: prog.ID})
	assert.ErrorIs(t, err, ErrProgramEnded)
}

func TestAdmitCapacityBoundary(t *testing.T) {
	capacity := 3
	f := newFixture(t, capacity)
	ctx := context.Background()

	start := time.Now().UTC().Add(time.Hour)
	stop := start.Add(time.Hour)

	// Exactly capacity overlapping recordings are accepted.
	for i := 0; i < capacity; i++ {
		prog := f.program(t, start, stop)
		_, err := f.checker.Admit(ctx, Request{ProgramID: prog.ID})
		require.NoError(t, err, "recording %d within capacity", i+1)
	}

	// The capacity+1th overlapping recording is rejected.
	prog := f.program(t, start, stop)
	_, err := f.checker.Admit(ctx, Request{ProgramID: prog.ID})
	require.Error(t, err)

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, f.tuner.ID, capErr.TunerID)
	assert.Equal(t, capacity, capErr.Capacity)
}

func TestAdmitNonOverlappingUnbounded(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	start := time.Now().UTC().Add(time.Hour)

	// Back-to-back windows never contend: [start, stop) intervals touching
	// at the boundary do not overlap.
	progA := f.program(t, start, start.Add(30*time.Minute))
	progB := f.program(t, start.Add(30*time.Minute), start.Add(time.Hour))

	_, err := f.checker.Admit(ctx, Request{ProgramID: progA.ID})
	require.NoError(t, err)
	_, err = f.checker.Admit(ctx, Request{ProgramID: progB.ID})
	require.NoError(t, err)
}

func TestAdmitConcurrentSingleSlot(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	start := time.Now().UTC().Add(time.Hour)
	stop := start.Add(time.Hour)
	progA := f.program(t, start, stop)
	progB := f.program(t, start, stop)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, prog := range []*model.Program{progA, progB} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.checker.Admit(ctx, Request{ProgramID: id})
		}(i, prog.ID)
	}
	wg.Wait()

	// Exactly one request wins the slot.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var capErr *CapacityError
			assert.True(t, errors.As(err, &capErr), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestCheckCapacityGrouping(t *testing.T) {
	tuner := &model.Tuner{ID: "t1", TunerCount: 2}

	// One overlap on the candidate's tuner: demand 2 of 2, fine.
	assert.NoError(t, checkCapacity(tuner, []store.OverlapRow{
		{TunerID: "t1", TunerCount: 2, RecordingID: "r1"},
	}))

	// Two overlaps: demand 3 of 2, rejected.
	err := checkCapacity(tuner, []store.OverlapRow{
		{TunerID: "t1", TunerCount: 2, RecordingID: "r1"},
		{TunerID: "t1", TunerCount: 2, RecordingID: "r2"},
	})
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "t1", capErr.TunerID)

	// Contention on an unrelated, saturated tuner also rejects.
	err = checkCapacity(tuner, []store.OverlapRow{
		{TunerID: "t2", TunerCount: 1, RecordingID: "r1"},
		{TunerID: "t2", TunerCount: 1, RecordingID: "r2"},
	})
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "t2", capErr.TunerID)
}
