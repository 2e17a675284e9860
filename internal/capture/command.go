// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package capture owns spawning, monitoring and terminating the external
// ffmpeg process that writes one recording. It has no knowledge of
// scheduling policy.
package capture

import "path/filepath"

// SpawnSpec describes one capture invocation.
type SpawnSpec struct {
	StreamURL  string // channel stream input
	OutputPath string // target segment file, e.g. .../recording0.mpeg
	Poster     bool   // also grab frame0.jpg (first segment only)
}

// Args builds the fixed ffmpeg argument template. The container is mpegts so
// an abruptly terminated capture still yields a playable partial file; -n
// never overwrites, which is why interrupted recordings continue in a new
// numbered segment.
func Args(spec SpawnSpec) []string {
	args := []string{
		"-loglevel", "error",
		"-n",
		"-i", spec.StreamURL,
		"-c:v", "copy",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-profile:a", "aac_low",
		"-f", "mpegts",
		spec.OutputPath,
	}
	if spec.Poster {
		posterPath := filepath.Join(filepath.Dir(spec.OutputPath), "frame0.jpg")
		args = append(args, "-vframes", "1", "-f", "image2", posterPath)
	}
	return args
}
