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

// CreateTuner inserts a tuner.
func (s *Store) CreateTuner(ctx context.Context, t *model.Tuner) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Created = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO tuners (id, name, addr, model, tuner_count, created)
	VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Addr, t.Model, t.TunerCount, toNanos(t.Created))
	if err != nil {
		return fmt.Errorf("create tuner: %w", err)
	}
	return nil
}

// CreateChannel inserts a channel belonging to a tuner.
func (s *Store) CreateChannel(ctx context.Context, c *model.Channel) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO channels (id, tuner_id, number, name, stream, hd)
	VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.TunerID, c.Number, c.Name, c.Stream, c.HD)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}

// CreateProgram inserts a guide program.
func (s *Store) CreateProgram(ctx context.Context, p *model.Program) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO programs (id, channel_id, title, subtitle, description, start, stop, duration)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ChannelID, p.Title, p.Subtitle, p.Desc,
		toNanos(p.Start), toNanos(p.Stop), p.Duration)
	if err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// GetProgram loads one program by ID.
func (s *Store) GetProgram(ctx context.Context, id string) (*model.Program, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, channel_id, title, subtitle, description, start, stop, duration
	FROM programs WHERE id = ?`, id)

	var (
		p           model.Program
		start, stop int64
	)
	err := row.Scan(&p.ID, &p.ChannelID, &p.Title, &p.Subtitle, &p.Desc,
		&start, &stop, &p.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("program %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p.Start = fromNanos(start)
	p.Stop = fromNanos(stop)
	return &p, nil
}

// GetChannel loads one channel by ID.
func (s *Store) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, tuner_id, number, name, stream, hd FROM channels WHERE id = ?`, id)

	var c model.Channel
	err := row.Scan(&c.ID, &c.TunerID, &c.Number, &c.Name, &c.Stream, &c.HD)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetTuner loads one tuner by ID.
func (s *Store) GetTuner(ctx context.Context, id string) (*model.Tuner, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, name, addr, model, tuner_count, created FROM tuners WHERE id = ?`, id)

	var (
		t       model.Tuner
		created int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Addr, &t.Model, &t.TunerCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tuner %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Created = fromNanos(created)
	return &t, nil
}

// OverlapRow describes one existing recording contending for a tuner during
// a candidate window.
type OverlapRow struct {
	TunerID     string
	TunerCount  int
	RecordingID string
}

// FindOverlapping returns, for every recording whose scheduled window
// intersects the half-open interval [start, stop), the tuner its channel
// belongs to. The classic interval test: existing.start < stop AND
// existing.stop > start.
func (s *Store) FindOverlapping(ctx context.Context, tx *sql.Tx, start, stop time.Time) ([]OverlapRow, error) {
	query := `
	SELECT t.id, t.tuner_count, r.id
	FROM recordings r
	JOIN programs p ON p.id = r.program_id
	JOIN channels c ON c.id = p.channel_id
	JOIN tuners t ON t.id = c.tuner_id
	WHERE r.start < ? AND r.stop > ?`

	var (
		rows *sql.Rows
		err  error
	)
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, toNanos(stop), toNanos(start))
	} else {
		rows, err = s.db.QueryContext(ctx, query, toNanos(stop), toNanos(start))
	}
	if err != nil {
		return nil, fmt.Errorf("find overlapping recordings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OverlapRow
	for rows.Next() {
		var o OverlapRow
		if err := rows.Scan(&o.TunerID, &o.TunerCount, &o.RecordingID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// TunerForProgram resolves the tuner that will serve a recording of the
// given program.
func (s *Store) TunerForProgram(ctx context.Context, programID string) (*model.Tuner, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT t.id, t.name, t.addr, t.model, t.tuner_count, t.created
	FROM tuners t
	JOIN channels c ON c.tuner_id = t.id
	JOIN programs p ON p.channel_id = c.id
	WHERE p.id = ?`, programID)

	var (
		t       model.Tuner
		created int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Addr, &t.Model, &t.TunerCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tuner for program %s: %w", programID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Created = fromNanos(created)
	return &t, nil
}
