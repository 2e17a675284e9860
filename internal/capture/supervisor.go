// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/ManuGH/dvrd/internal/log"
	"github.com/ManuGH/dvrd/internal/metrics"
)

// SpawnError is returned when the capture process could not be launched.
type SpawnError struct {
	Bin string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Bin, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Proc is a handle to a live capture process.
type Proc struct {
	PID  int
	proc *process.Process
}

// Supervisor translates stored pids into live process handles and owns the
// OS-level capture lifecycle.
type Supervisor struct {
	bin    string
	grace  time.Duration // early-death detection window after spawn
	logger zerolog.Logger
}

// NewSupervisor returns a supervisor invoking bin (normally "ffmpeg").
func NewSupervisor(bin string, spawnGrace time.Duration) *Supervisor {
	if bin == "" {
		bin = "ffmpeg"
	}
	if spawnGrace <= 0 {
		spawnGrace = 2 * time.Second
	}
	return &Supervisor{
		bin:    bin,
		grace:  spawnGrace,
		logger: log.WithComponent("capture"),
	}
}

// Resolve returns a handle for pid, or nil when pid is nil, the OS reports no
// such process, or the process is a zombie (which is reaped). Callers are
// expected to clear the stored pid in the nil cases.
func (s *Supervisor) Resolve(pid *int) (*Proc, error) {
	if pid == nil {
		return nil, nil
	}

	p, err := process.NewProcess(int32(*pid))
	if err != nil {
		// No such process.
		return nil, nil //nolint:nilerr // absence is the answer, not a failure
	}

	statuses, err := p.Status()
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	if slices.Contains(statuses, process.Zombie) {
		s.reap(*pid)
		return nil, nil
	}

	running, err := p.IsRunning()
	if err != nil || !running {
		return nil, nil
	}

	return &Proc{PID: *pid, proc: p}, nil
}

// reap waits on a zombie child so the kernel can release it. Fails silently
// for processes that are not our children.
func (s *Supervisor) reap(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	done := make(chan struct{})
	go func() {
		_, _ = proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.logger.Warn().Int("pid", pid).Msg("zombie reap timed out")
	}
}

// Spawn launches the capture process described by spec and returns its pid.
// The invocation line is appended to a per-artifact ffmpeg.stderr log for
// postmortem diagnosis, and the process is watched for the grace window: an early
// nonzero exit is logged with the tail of its error stream but not rolled
// back. The next scheduling pass detects the dead process and retries.
func (s *Supervisor) Spawn(spec SpawnSpec) (int, error) {
	args := Args(spec)
	cmd := exec.Command(s.bin, args...) // #nosec G204 -- fixed template, operator-configured binary
	setProcAttrs(cmd)

	stderrPath := filepath.Join(filepath.Dir(spec.OutputPath), "ffmpeg.stderr")
	stderrLog, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		return 0, &SpawnError{Bin: s.bin, Err: err}
	}
	fmt.Fprintf(stderrLog, "\n%s %s\n\n", s.bin, strings.Join(args, " "))
	cmd.Stderr = stderrLog

	s.logger.Info().Str("bin", s.bin).Str("output", spec.OutputPath).Msg("spawning capture process")
	if err := cmd.Start(); err != nil {
		_ = stderrLog.Close()
		metrics.IncSpawnFailure()
		return 0, &SpawnError{Bin: s.bin, Err: err}
	}
	pid := cmd.Process.Pid

	// The wait goroutine reaps the child whenever it exits, so Resolve never
	// finds our own children as zombies.
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
		_ = stderrLog.Close()
	}()

	select {
	case werr := <-done:
		s.logger.Error().
			Int("pid", pid).
			AnErr("wait", werr).
			Str("stderr", tailLines(stderrPath, 3)).
			Msg("capture process died within grace window")
	case <-time.After(s.grace):
	}

	return pid, nil
}

// Terminate requests a graceful stop via SIGINT and waits up to timeout for
// the process to exit. On timeout it reports exited=false and leaves the
// process alone; the next scheduling pass retries. There is deliberately no
// SIGKILL escalation here, so ffmpeg can flush its container trailer.
func (s *Supervisor) Terminate(proc *Proc, timeout time.Duration) (bool, error) {
	if proc == nil {
		metrics.IncTerminate("gone")
		return true, nil
	}

	if err := proc.proc.SendSignal(syscall.SIGINT); err != nil {
		// Exited between resolve and signal.
		metrics.IncTerminate("gone")
		return true, nil //nolint:nilerr
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, err := proc.proc.IsRunning()
		if err != nil || !running {
			metrics.IncTerminate("exited")
			return true, nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	metrics.IncTerminate("timeout")
	return false, nil
}

// tailLines returns the last n lines of the file at path, best effort.
func tailLines(path string, n int) string {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
