// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"fmt"
	"time"
)

// MediaType discriminates the media variants. Dispatch over media is done
// with exhaustive switches on this field, never with reflection.
type MediaType string

const (
	MediaShow  MediaType = "show"
	MediaMovie MediaType = "movie"
	MediaMusic MediaType = "music"
)

// Media is a library artifact on disk. Exactly one of the variant payloads
// matching Type is populated.
type Media struct {
	ID       string    `json:"id"`
	Type     MediaType `json:"type"`
	Path     string    `json:"path"` // directory holding the capture segments
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle,omitempty"`
	Desc     string    `json:"desc,omitempty"`
	Created  time.Time `json:"created"`

	Show  *ShowInfo  `json:"show,omitempty"`
	Movie *MovieInfo `json:"movie,omitempty"`
	Music *MusicInfo `json:"music,omitempty"`
}

// ShowInfo is the payload for MediaShow: a recorded airing of a program.
type ShowInfo struct {
	ProgramID string `json:"programId"`
	Season    int    `json:"season,omitempty"`
	Episode   string `json:"episode,omitempty"`
}

// MovieInfo is the payload for MediaMovie.
type MovieInfo struct {
	Year int `json:"year,omitempty"`
}

// MusicInfo is the payload for MediaMusic.
type MusicInfo struct {
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// Validate checks the type/payload pairing.
func (m *Media) Validate() error {
	switch m.Type {
	case MediaShow:
		if m.Show == nil {
			return fmt.Errorf("media %s: show payload missing", m.ID)
		}
	case MediaMovie:
		if m.Movie == nil {
			return fmt.Errorf("media %s: movie payload missing", m.ID)
		}
	case MediaMusic:
		if m.Music == nil {
			return fmt.Errorf("media %s: music payload missing", m.ID)
		}
	default:
		return fmt.Errorf("media %s: unknown type %q", m.ID, m.Type)
	}
	return nil
}
