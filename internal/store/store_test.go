package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/dvrd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedProgram creates a tuner (capacity), a channel on it, and a program
// airing on that channel in [start, stop).
func seedProgram(t *testing.T, s *Store, capacity int, start, stop time.Time) *model.Program {
	t.Helper()
	ctx := context.Background()

	tuner := &model.Tuner{Name: "hdhr-" + uuid.NewString()[:8], Addr: "10.0.0.2", Model: "HDHR5-4US", TunerCount: capacity}
	require.NoError(t, s.CreateTuner(ctx, tuner))

	ch := &model.Channel{TunerID: tuner.ID, Number: "7.1", Name: "KXYZ", Stream: "http://10.0.0.2:5004/auto/v7.1"}
	require.NoError(t, s.CreateChannel(ctx, ch))

	prog := &model.Program{ChannelID: ch.ID, Title: "Evening News", Start: start, Stop: stop, Duration: int(stop.Sub(start).Seconds())}
	require.NoError(t, s.CreateProgram(ctx, prog))
	return prog
}

func TestRecordingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	stop := start.Add(30 * time.Minute)
	prog := seedProgram(t, s, 2, start, stop)

	rec := &model.Recording{ProgramID: prog.ID, Start: start, Stop: stop}
	require.NoError(t, s.CreateRecording(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNone, got.Status)
	assert.Nil(t, got.PID)
	assert.True(t, got.Start.Equal(start))
	assert.True(t, got.Stop.Equal(stop))
}

func TestGetRecordingNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRecording(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRecordingPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC()
	prog := seedProgram(t, s, 1, start, start.Add(time.Hour))
	rec := &model.Recording{ProgramID: prog.ID, Start: start, Stop: start.Add(time.Hour)}
	require.NoError(t, s.CreateRecording(ctx, rec))

	pid := 4242
	recording := model.StatusRecording
	require.NoError(t, s.UpdateRecording(ctx, rec.ID, model.RecordingPatch{
		Status: &recording,
		PID:    &pid,
	}))

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRecording, got.Status)
	require.NotNil(t, got.PID)
	assert.Equal(t, 4242, *got.PID)

	done := model.StatusDone
	require.NoError(t, s.UpdateRecording(ctx, rec.ID, model.RecordingPatch{
		Status:   &done,
		ClearPID: true,
	}))

	got, err = s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.Status)
	assert.Nil(t, got.PID)

	err = s.UpdateRecording(ctx, "missing", model.RecordingPatch{Status: &done})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveRecordings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	statuses := []model.RecordingStatus{model.StatusNone, model.StatusRecording, model.StatusError, model.StatusDone}
	for i, status := range statuses {
		prog := seedProgram(t, s, 1, base.Add(time.Duration(i)*time.Hour), base.Add(time.Duration(i+1)*time.Hour))
		rec := &model.Recording{ProgramID: prog.ID, Start: prog.Start, Stop: prog.Stop}
		require.NoError(t, s.CreateRecording(ctx, rec))
		st := status
		require.NoError(t, s.UpdateRecording(ctx, rec.ID, model.RecordingPatch{Status: &st}))
	}

	withError, err := s.ListActiveRecordings(ctx, true)
	require.NoError(t, err)
	assert.Len(t, withError, 3) // none, recording, error

	withoutError, err := s.ListActiveRecordings(ctx, false)
	require.NoError(t, err)
	assert.Len(t, withoutError, 2) // none, recording
}

func TestPurgeDoneBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stop := time.Now().UTC().Add(-3 * time.Hour)
	prog := seedProgram(t, s, 1, stop.Add(-time.Hour), stop)
	rec := &model.Recording{ProgramID: prog.ID, Start: prog.Start, Stop: prog.Stop}
	require.NoError(t, s.CreateRecording(ctx, rec))
	done := model.StatusDone
	require.NoError(t, s.UpdateRecording(ctx, rec.ID, model.RecordingPatch{Status: &done}))

	// Cutoff exactly at stop: retained (strictly-older semantics).
	n, err := s.PurgeDoneBefore(ctx, stop)
	require.NoError(t, err)
	assert.Zero(t, n)

	// One microsecond past: purged.
	n, err = s.PurgeDoneBefore(ctx, stop.Add(time.Microsecond))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.GetRecording(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindOverlapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	prog := seedProgram(t, s, 2, base, base.Add(time.Hour))
	rec := &model.Recording{ProgramID: prog.ID, Start: base, Stop: base.Add(time.Hour)}
	require.NoError(t, s.CreateRecording(ctx, rec))

	// Overlapping window.
	rows, err := s.FindOverlapping(ctx, nil, base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, rec.ID, rows[0].RecordingID)
	assert.Equal(t, 2, rows[0].TunerCount)

	// Touching windows do not overlap (half-open intervals).
	rows, err = s.FindOverlapping(ctx, nil, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.FindOverlapping(ctx, nil, base.Add(-time.Hour), base)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTunerForProgram(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC()
	prog := seedProgram(t, s, 4, start, start.Add(time.Hour))

	tuner, err := s.TunerForProgram(ctx, prog.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, tuner.TunerCount)

	_, err = s.TunerForProgram(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaFactoryGetOrCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libDir := t.TempDir()
	factory := NewMediaFactory(s, libDir)

	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	prog := seedProgram(t, s, 1, start, start.Add(time.Hour))

	m1, err := factory.GetOrCreateShowForProgram(ctx, prog.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MediaShow, m1.Type)
	assert.Equal(t, filepath.Join(libDir, "evening-news-20260301-2000"), m1.Path)
	assert.DirExists(t, m1.Path)

	// Second call returns the same artifact.
	m2, err := factory.GetOrCreateShowForProgram(ctx, prog.ID)
	require.NoError(t, err)
	assert.Equal(t, m1.ID, m2.ID)
}

func TestMediaFactoryCollisionSuffix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libDir := t.TempDir()
	factory := NewMediaFactory(s, libDir)

	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	progA := seedProgram(t, s, 1, start, start.Add(time.Hour))
	progB := seedProgram(t, s, 1, start, start.Add(time.Hour))

	mA, err := factory.GetOrCreateShowForProgram(ctx, progA.ID)
	require.NoError(t, err)
	mB, err := factory.GetOrCreateShowForProgram(ctx, progB.ID)
	require.NoError(t, err)

	// Same title + air time must not share a directory.
	assert.NotEqual(t, mA.Path, mB.Path)
	assert.DirExists(t, mB.Path)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"The Late Show":      "the-late-show",
		"Späße & Co.":        "spaesse-co",
		"":                   "recording",
		"***":                "recording",
		"News @ 9 -- LIVE!!": "news-9-live",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in), in)
	}
}
