// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/ManuGH/dvrd/internal/model"
)

// MediaFactory creates show artifacts for recordings. The library root is
// where capture directories are created.
type MediaFactory struct {
	store      *Store
	libraryDir string
}

// NewMediaFactory returns a factory writing under libraryDir.
func NewMediaFactory(s *Store, libraryDir string) *MediaFactory {
	return &MediaFactory{store: s, libraryDir: libraryDir}
}

// GetOrCreateShowForProgram returns the show artifact for a program, creating
// it on first use. The directory name is derived deterministically from the
// program title and air time; a random suffix resolves collisions.
func (f *MediaFactory) GetOrCreateShowForProgram(ctx context.Context, programID string) (*model.Media, error) {
	if existing, err := f.showByProgram(ctx, programID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	prog, err := f.store.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s-%s", slugify(prog.Title), prog.Start.UTC().Format("20060102-1504"))
	path := filepath.Join(f.libraryDir, name)

	m := &model.Media{
		ID:       uuid.NewString(),
		Type:     model.MediaShow,
		Path:     path,
		Title:    prog.Title,
		Subtitle: prog.Subtitle,
		Desc:     prog.Desc,
		Created:  time.Now().UTC(),
		Show:     &model.ShowInfo{ProgramID: programID},
	}

	err = f.insertShow(ctx, m)
	for isUniqueViolation(err) {
		// Name taken by an unrelated artifact; disambiguate and retry.
		m.Path = fmt.Sprintf("%s-%s", path, uuid.NewString()[:8])
		err = f.insertShow(ctx, m)
	}
	if err != nil {
		return nil, fmt.Errorf("create show for program %s: %w", programID, err)
	}

	if err := os.MkdirAll(m.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create show directory: %w", err)
	}
	return m, nil
}

func (f *MediaFactory) insertShow(ctx context.Context, m *model.Media) error {
	_, err := f.store.db.ExecContext(ctx, `
	INSERT INTO media (id, type, path, title, subtitle, description, program_id, created)
	VALUES (?, 'show', ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Path, m.Title, m.Subtitle, m.Desc, m.Show.ProgramID, toNanos(m.Created))
	return err
}

func (f *MediaFactory) showByProgram(ctx context.Context, programID string) (*model.Media, error) {
	row := f.store.db.QueryRowContext(ctx, `
	SELECT id, type, path, title, subtitle, description, program_id, created
	FROM media WHERE program_id = ?`, programID)
	return scanMedia(row)
}

// GetMedia loads one media artifact by ID.
func (s *Store) GetMedia(ctx context.Context, id string) (*model.Media, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, type, path, title, subtitle, description, program_id, created
	FROM media WHERE id = ?`, id)
	return scanMedia(row)
}

func scanMedia(row *sql.Row) (*model.Media, error) {
	var (
		m         model.Media
		typ       string
		programID sql.NullString
		created   int64
	)
	err := row.Scan(&m.ID, &typ, &m.Path, &m.Title, &m.Subtitle, &m.Desc,
		&programID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Type = model.MediaType(typ)
	m.Created = fromNanos(created)
	switch m.Type {
	case model.MediaShow:
		m.Show = &model.ShowInfo{ProgramID: programID.String}
	case model.MediaMovie:
		m.Movie = &model.MovieInfo{}
	case model.MediaMusic:
		m.Music = &model.MusicInfo{}
	}
	return &m, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// slugify converts a program title into a filesystem-safe, human-readable
// name. Example: "The Late Show" → "the-late-show".
func slugify(name string) string {
	if name == "" {
		return "recording"
	}

	s := strings.ToLower(name)

	replacer := strings.NewReplacer(
		"ä", "ae",
		"ö", "oe",
		"ü", "ue",
		"ß", "ss",
		"é", "e",
		"è", "e",
		"ê", "e",
		"à", "a",
		"á", "a",
		"ç", "c",
		"ñ", "n",
	)
	s = replacer.Replace(s)

	var result strings.Builder
	lastWasDash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			lastWasDash = false
		} else if !lastWasDash {
			result.WriteRune('-')
			lastWasDash = true
		}
	}

	slug := strings.Trim(result.String(), "-")
	if len(slug) > 50 {
		slug = strings.TrimRight(slug[:50], "-")
	}
	if slug == "" {
		return "recording"
	}
	return slug
}
