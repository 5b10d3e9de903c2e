package controller

import (
	"slices"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/conf"
)

// Selections are the user's choices on the recording screen. They are
// copied into a fresh capture.Config on every Start.
type Selections struct {
	MediaType     capture.MediaType   `json:"media_type"`
	Type          string              `json:"type"`
	Format        string              `json:"format"`
	Quality       capture.BitrateTier `json:"quality"`
	CustomName    string              `json:"custom_name,omitempty"`
	RetentionDays int                 `json:"retention_days,omitempty"`
	FacingMode    string              `json:"facing_mode,omitempty"`
}

// DefaultSelections records high quality webm audio tagged antenne.
func DefaultSelections() Selections {
	return Selections{
		MediaType: capture.MediaAudio,
		Type:      backend.TypeAntenne,
		Format:    "webm",
		Quality:   capture.TierHigh,
	}
}

// SelectionsFromSettings derives the initial selections from configuration.
func SelectionsFromSettings(c *conf.CaptureSettings) Selections {
	sel := DefaultSelections()
	if c == nil {
		return sel
	}
	if c.MediaType != "" {
		sel.MediaType = capture.MediaType(c.MediaType)
	}
	if c.Type != "" {
		sel.Type = c.Type
	}
	if c.Format != "" {
		sel.Format = c.Format
	}
	if c.Quality != "" {
		sel.Quality = capture.BitrateTier(c.Quality)
	}
	sel.RetentionDays = c.RetentionDays
	sel.FacingMode = c.FacingMode
	return sel
}

// Config builds the session config. Video always records webm.
func (s Selections) Config() (capture.Config, error) {
	if !slices.Contains(backend.RecordingTypes, s.Type) {
		return capture.Config{}, capture.NewFailure(capture.KindValidationFailure, "unknown recording type "+s.Type, nil)
	}
	if s.RetentionDays < 0 {
		return capture.Config{}, capture.NewFailure(capture.KindValidationFailure, "retention days must not be negative", nil)
	}

	container := s.Format
	if s.MediaType == capture.MediaVideo {
		container = "webm"
	}
	cfg := capture.Config{
		MediaType:  s.MediaType,
		Container:  container,
		Tier:       s.Quality,
		FacingMode: s.FacingMode,
		Type:       s.Type,
	}
	if err := cfg.Validate(); err != nil {
		return capture.Config{}, err
	}
	return cfg, nil
}

func (s Selections) targetFormat() string {
	if s.MediaType == capture.MediaVideo {
		return "webm"
	}
	return s.Format
}
