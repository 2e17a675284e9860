// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !unix

package capture

import "os/exec"

func setProcAttrs(cmd *exec.Cmd) {
	// Process groups are unsupported here; single-pid termination only.
}
