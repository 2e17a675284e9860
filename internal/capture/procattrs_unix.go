// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package capture

import (
	"os/exec"
	"syscall"
)

// setProcAttrs starts the capture in its own process group. The group
// boundary guarantees eventual death of the whole ffmpeg tree even when a
// graceful stop times out and the stored pid has already been cleared.
func setProcAttrs(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
