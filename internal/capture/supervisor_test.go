//go:build unix

package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCapture writes a shell script standing in for ffmpeg. The script
// ignores the template arguments and runs body.
func fakeCapture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestArgsTemplate(t *testing.T) {
	spec := SpawnSpec{
		StreamURL:  "http://10.0.0.2:5004/auto/v7.1",
		OutputPath: "/lib/show/recording0.mpeg",
		Poster:     true,
	}
	args := Args(spec)

	assert.Equal(t, []string{
		"-loglevel", "error",
		"-n",
		"-i", "http://10.0.0.2:5004/auto/v7.1",
		"-c:v", "copy",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-profile:a", "aac_low",
		"-f", "mpegts",
		"/lib/show/recording0.mpeg",
		"-vframes", "1", "-f", "image2", "/lib/show/frame0.jpg",
	}, args)

	// Poster frame only for the first segment.
	spec.Poster = false
	spec.OutputPath = "/lib/show/recording1.mpeg"
	args = Args(spec)
	assert.NotContains(t, args, "image2")
}

func TestResolveNilPID(t *testing.T) {
	s := NewSupervisor("ffmpeg", time.Second)
	proc, err := s.Resolve(nil)
	require.NoError(t, err)
	assert.Nil(t, proc)
}

func TestResolveDeadPID(t *testing.T) {
	s := NewSupervisor("ffmpeg", time.Second)
	// PIDs this large are rejected or unused on any sane system.
	pid := 1 << 22
	proc, err := s.Resolve(&pid)
	require.NoError(t, err)
	assert.Nil(t, proc)
}

func TestSpawnResolveTerminate(t *testing.T) {
	bin := fakeCapture(t, `trap 'exit 0' INT
sleep 30 &
wait $!`)
	outDir := t.TempDir()
	s := NewSupervisor(bin, 100*time.Millisecond)

	pid, err := s.Spawn(SpawnSpec{
		StreamURL:  "http://example/stream",
		OutputPath: filepath.Join(outDir, "recording0.mpeg"),
	})
	require.NoError(t, err)
	require.Positive(t, pid)

	// Invocation metadata appended to the per-artifact error log.
	data, err := os.ReadFile(filepath.Join(outDir, "ffmpeg.stderr"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "recording0.mpeg")

	proc, err := s.Resolve(&pid)
	require.NoError(t, err)
	require.NotNil(t, proc)
	assert.Equal(t, pid, proc.PID)

	exited, err := s.Terminate(proc, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, exited)

	// The wait goroutine reaps the child; the pid no longer resolves.
	assert.Eventually(t, func() bool {
		p, err := s.Resolve(&pid)
		return err == nil && p == nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSpawnEarlyDeathKeepsPID(t *testing.T) {
	bin := fakeCapture(t, `echo "input not found" >&2
exit 1`)
	outDir := t.TempDir()
	s := NewSupervisor(bin, 500*time.Millisecond)

	pid, err := s.Spawn(SpawnSpec{
		StreamURL:  "http://example/stream",
		OutputPath: filepath.Join(outDir, "recording0.mpeg"),
	})
	require.NoError(t, err)
	assert.Positive(t, pid)

	// Stderr captured for postmortem.
	data, err := os.ReadFile(filepath.Join(outDir, "ffmpeg.stderr"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "input not found")
}

func TestSpawnMissingBinary(t *testing.T) {
	s := NewSupervisor(filepath.Join(t.TempDir(), "missing-bin"), time.Second)
	_, err := s.Spawn(SpawnSpec{
		StreamURL:  "http://example/stream",
		OutputPath: filepath.Join(t.TempDir(), "recording0.mpeg"),
	})
	require.Error(t, err)

	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}

func TestTerminateNilProc(t *testing.T) {
	s := NewSupervisor("ffmpeg", time.Second)
	exited, err := s.Terminate(nil, time.Second)
	require.NoError(t, err)
	assert.True(t, exited)
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o600))
	assert.Equal(t, "b\nc\nd", tailLines(path, 3))
	assert.Equal(t, "", tailLines(filepath.Join(t.TempDir(), "missing"), 3))
}
