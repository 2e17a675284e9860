// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/dvrd/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const recordingCols = "id, program_id, show_id, start, stop, status, pid, created, modified"

// CreateRecording inserts a new recording row. When rec.ID is empty an ID is
// generated. The row is created with status none and no pid.
func (s *Store) CreateRecording(ctx context.Context, rec *model.Recording) error {
	return s.createRecording(ctx, s.db, rec)
}

// CreateRecordingTx is the transactional variant used by the admission check.
func (s *Store) CreateRecordingTx(ctx context.Context, tx *sql.Tx, rec *model.Recording) error {
	return s.createRecording(ctx, tx, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) createRecording(ctx context.Context, db execer, rec *model.Recording) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.Created = now
	rec.Modified = now
	if rec.Status == "" {
		rec.Status = model.StatusNone
	}

	_, err := db.ExecContext(ctx, `
	INSERT INTO recordings (id, program_id, start, stop, status, created, modified)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProgramID, toNanos(rec.Start), toNanos(rec.Stop),
		string(rec.Status), toNanos(now), toNanos(now))
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	return nil
}

// GetRecording loads one recording by ID.
func (s *Store) GetRecording(ctx context.Context, id string) (*model.Recording, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordingCols+" FROM recordings WHERE id = ?", id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListActiveRecordings returns the work set for one scheduling pass: every
// recording not in status done. When includeError is false, error rows are
// excluded as well (no automatic retry policy).
func (s *Store) ListActiveRecordings(ctx context.Context, includeError bool) ([]*model.Recording, error) {
	query := "SELECT " + recordingCols + " FROM recordings WHERE status != 'done'"
	if !includeError {
		query += " AND status != 'error'"
	}
	query += " ORDER BY start"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active recordings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*model.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdateRecording applies a partial update atomically and bumps modified.
// No-op patches still touch modified.
func (s *Store) UpdateRecording(ctx context.Context, id string, patch model.RecordingPatch) error {
	set := "modified = ?"
	args := []any{toNanos(time.Now().UTC())}

	if patch.Status != nil {
		set += ", status = ?"
		args = append(args, string(*patch.Status))
	}
	switch {
	case patch.ClearPID:
		set += ", pid = NULL"
	case patch.PID != nil:
		set += ", pid = ?"
		args = append(args, *patch.PID)
	}
	switch {
	case patch.ClearShowID:
		set += ", show_id = NULL"
	case patch.ShowID != nil:
		set += ", show_id = ?"
		args = append(args, *patch.ShowID)
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE recordings SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update recording %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRecording removes the ledger row. The caller is responsible for
// stopping any live capture process first.
func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete recording %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeDoneBefore deletes done recordings whose stop lies strictly before
// cutoff. A recording with stop exactly at the cutoff is retained.
func (s *Store) PurgeDoneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM recordings WHERE status = 'done' AND stop < ?", toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge recordings: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (*model.Recording, error) {
	var (
		rec            model.Recording
		showID         sql.NullString
		pid            sql.NullInt64
		start, stop    int64
		created, modif int64
		status         string
	)
	if err := row.Scan(&rec.ID, &rec.ProgramID, &showID, &start, &stop,
		&status, &pid, &created, &modif); err != nil {
		return nil, err
	}
	rec.Start = fromNanos(start)
	rec.Stop = fromNanos(stop)
	rec.Created = fromNanos(created)
	rec.Modified = fromNanos(modif)
	rec.Status = model.RecordingStatus(status)
	if showID.Valid {
		rec.ShowID = &showID.String
	}
	if pid.Valid {
		p := int(pid.Int64)
		rec.PID = &p
	}
	return &rec, nil
}
