// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// Tuner is a physical or network device able to deliver TunerCount
// simultaneous, independent live streams.
type Tuner struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Addr       string    `json:"addr"`
	Model      string    `json:"model"`
	TunerCount int       `json:"tunerCount"`
	Created    time.Time `json:"created"`
}

// Channel is a named stream source belonging to a tuner.
// (TunerID, Number) is unique.
type Channel struct {
	ID      string `json:"id"`
	TunerID string `json:"tunerId"`
	Number  string `json:"number"`
	Name    string `json:"name"`
	Stream  string `json:"stream"` // capture input URL
	HD      bool   `json:"hd"`
}

// Program is a scheduled airing sourced from guide data. Read-only to the
// recording engine.
type Program struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle,omitempty"`
	Desc      string    `json:"desc,omitempty"`
	Start     time.Time `json:"start"`
	Stop      time.Time `json:"stop"`
	Duration  int       `json:"duration"` // seconds
}
