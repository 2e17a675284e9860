// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package recorder implements the per-recording state machine and the
// scheduling pass that drives it.
package recorder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	segmentPrefix = "recording"
	segmentExt    = ".mpeg"
)

// Segments returns the capture segment files under dir, ordered by their
// sequence number. Gaps in the numbering are tolerated; a restarted capture
// continues in a fresh segment because ffmpeg never overwrites.
func Segments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segments in %s: %w", dir, err)
	}

	numbered := make(map[int]string)
	var numbers []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		n, err := strconv.Atoi(name[len(segmentPrefix) : len(name)-len(segmentExt)])
		if err != nil || n < 0 {
			continue
		}
		numbered[n] = filepath.Join(dir, name)
		numbers = append(numbers, n)
	}

	sort.Ints(numbers)
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, numbered[n])
	}
	return out, nil
}

// NextSegment returns the path for the next capture segment in dir:
// recording<last+1>.mpeg, or recording0.mpeg for an empty directory.
func NextSegment(dir string) (string, error) {
	segs, err := Segments(dir)
	if err != nil {
		return "", err
	}
	next := 0
	if len(segs) > 0 {
		last := filepath.Base(segs[len(segs)-1])
		n, err := strconv.Atoi(last[len(segmentPrefix) : len(last)-len(segmentExt)])
		if err != nil {
			return "", fmt.Errorf("parse segment %s: %w", last, err)
		}
		next = n + 1
	}
	return filepath.Join(dir, fmt.Sprintf("%s%d%s", segmentPrefix, next, segmentExt)), nil
}

// Concatenate appends srcs to dst in order and deletes each source after it
// has been copied. Valid because the container is mpegts: transport streams
// are concatenable byte-wise.
func Concatenate(dst string, srcs []string) error {
	if len(srcs) == 0 {
		return nil
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		return fmt.Errorf("open %s: %w", dst, err)
	}
	defer func() { _ = out.Close() }()

	for _, src := range srcs {
		in, err := os.Open(src) // #nosec G304
		if err != nil {
			return fmt.Errorf("open segment %s: %w", src, err)
		}
		_, err = io.Copy(out, in)
		_ = in.Close()
		if err != nil {
			return fmt.Errorf("append segment %s: %w", src, err)
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("remove segment %s: %w", src, err)
		}
	}
	return nil
}

// Finalize merges all numbered segments of a capture directory into the
// canonical first segment.
func Finalize(dir string) error {
	segs, err := Segments(dir)
	if err != nil {
		return err
	}
	if len(segs) < 2 {
		return nil
	}
	return Concatenate(segs[0], segs[1:])
}
