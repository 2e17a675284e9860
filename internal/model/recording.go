// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model holds the DVR domain types shared by the store, the
// admission checker and the recording controller.
package model

import (
	"time"
)

// RecordingStatus is the lifecycle state of a recording.
type RecordingStatus string

const (
	StatusNone      RecordingStatus = "none"      // scheduled, capture not started
	StatusRecording RecordingStatus = "recording" // capture process supervised
	StatusError     RecordingStatus = "error"     // last control attempt failed
	StatusDone      RecordingStatus = "done"      // window ended, capture finalized
)

// Valid reports whether s is a known recording status.
func (s RecordingStatus) Valid() bool {
	switch s {
	case StatusNone, StatusRecording, StatusError, StatusDone:
		return true
	}
	return false
}

// Recording is a user-requested capture of one program's airing.
//
// Invariant: PID is non-nil only while Status == StatusRecording. The
// recording controller owns all transitions of Status and PID.
type Recording struct {
	ID        string          `json:"id"`
	ProgramID string          `json:"programId"`
	ShowID    *string         `json:"showId,omitempty"` // set once capture starts
	Start     time.Time       `json:"start"`
	Stop      time.Time       `json:"stop"`
	Status    RecordingStatus `json:"status"`
	PID       *int            `json:"pid,omitempty"`
	Created   time.Time       `json:"created"`
	Modified  time.Time       `json:"modified"`
}

// IsNow reports whether now falls inside the half-open window [Start, Stop).
func (r *Recording) IsNow(now time.Time) bool {
	return !now.Before(r.Start) && now.Before(r.Stop)
}

// IsFuture reports whether the window has not begun yet.
func (r *Recording) IsFuture(now time.Time) bool {
	return now.Before(r.Start)
}

// IsPast reports whether the window has ended.
func (r *Recording) IsPast(now time.Time) bool {
	return !now.Before(r.Stop)
}

// RecordingPatch is a partial update applied atomically by the ledger.
// Nil fields are left untouched; ClearPID/ClearShowID null the column.
type RecordingPatch struct {
	Status      *RecordingStatus
	PID         *int
	ClearPID    bool
	ShowID      *string
	ClearShowID bool
}
