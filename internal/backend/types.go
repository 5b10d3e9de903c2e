package backend

import (
	"fmt"
	"slices"
	"time"

	"github.com/radiorec/radiorec/internal/errors"
)

// Recording types accepted by the backend.
const (
	TypeAntenne  = "antenne"
	TypeEmission = "emission"
	TypeReunion  = "reunion"
)

// RecordingTypes lists the recording type tags in display order.
var RecordingTypes = []string{TypeAntenne, TypeEmission, TypeReunion}

// Recording is a stored recording as returned by the backend.
type Recording struct {
	ID              int64          `json:"id"`
	Title           string         `json:"title"`
	Type            string         `json:"type"`
	CustomName      string         `json:"custom_name"`
	File            string         `json:"file"`
	FileURL         string         `json:"file_url"`
	Format          string         `json:"format"`
	SampleRate      *int           `json:"sample_rate"`
	DurationSeconds *float64       `json:"duration_seconds"`
	CreatedAt       time.Time      `json:"created_at"`
	RetainedUntil   *time.Time     `json:"retained_until"`
	IsExpired       bool           `json:"is_expired"`
	VADReport       map[string]any `json:"vad_report"`
	VADSummary      *VADSummary    `json:"vad_summary"`
	Flagged         bool           `json:"flagged"`
}

// Duration returns the server-side duration and whether it is known.
func (r *Recording) Duration() (time.Duration, bool) {
	if r == nil || r.DurationSeconds == nil {
		return 0, false
	}
	return time.Duration(*r.DurationSeconds * float64(time.Second)), true
}

// VADSummary is the condensed voice activity report attached to a recording.
type VADSummary struct {
	TotalSilenceSeconds float64 `json:"total_silence_seconds"`
	UnnaturalSilences   []any   `json:"unnatural_silences"`
	SilencePercentage   float64 `json:"silence_percentage"`
}

// Page is one page of a paginated list.
type Page[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}

// Stats is the aggregate view from /api/recordings/stats/.
type Stats struct {
	Total                int            `json:"total"`
	Flagged              int            `json:"flagged"`
	ByType               map[string]int `json:"by_type"`
	TotalDurationSeconds float64        `json:"total_duration_seconds"`
}

// TrimResult echoes the accepted trim window.
type TrimResult struct {
	Message     string  `json:"message"`
	RecordingID int64   `json:"recording_id"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
}

// ProcessResult acknowledges a processing request.
type ProcessResult struct {
	Message     string `json:"message"`
	RecordingID int64  `json:"recording_id"`
}

// Settings mirrors the per-user settings resource.
type Settings struct {
	ID                       int64     `json:"id,omitempty"`
	StoragePath              string    `json:"storage_path"`
	DefaultFormat            string    `json:"default_format"`
	DefaultQuality           string    `json:"default_quality"`
	DefaultSampleRate        int       `json:"default_sample_rate"`
	DefaultChannels          int       `json:"default_channels"`
	AutoSplitEnabled         bool      `json:"auto_split_enabled"`
	AutoSplitDurationMinutes int       `json:"auto_split_duration_minutes"`
	RetentionDays            int       `json:"retention_days"`
	NamingTemplate           string    `json:"naming_template"`
	VADSensitivity           int       `json:"vad_sensitivity"`
	SilenceThresholdSeconds  float64   `json:"silence_threshold_seconds"`
	EmailAlertsEnabled       bool      `json:"email_alerts_enabled"`
	EmailHost                string    `json:"email_host"`
	EmailPort                int       `json:"email_port"`
	EmailUser                string    `json:"email_user"`
	EmailPassword            string    `json:"email_password,omitempty"`
	UpdatedAt                time.Time `json:"updated_at,omitzero"`
}

// DefaultSettings returns the values the backend assigns to a new user.
func DefaultSettings() Settings {
	return Settings{
		StoragePath:              "recordings/",
		DefaultFormat:            "mp3",
		DefaultQuality:           "high",
		DefaultSampleRate:        44100,
		DefaultChannels:          2,
		AutoSplitDurationMinutes: 60,
		RetentionDays:            30,
		NamingTemplate:           "{type}-{date}-{time}",
		VADSensitivity:           2,
		SilenceThresholdSeconds:  5.0,
		EmailPort:                587,
	}
}

var (
	settingsFormats   = []string{"mp3", "wav", "ogg", "flac", "webm"}
	settingsQualities = []string{"high", "medium", "low"}
)

// Validate checks the settings before they are sent to the backend.
func (s *Settings) Validate() error {
	var problems []string

	if s.DefaultFormat != "" && !slices.Contains(settingsFormats, s.DefaultFormat) {
		problems = append(problems, fmt.Sprintf("default_format: %q is not one of %v", s.DefaultFormat, settingsFormats))
	}
	if s.DefaultQuality != "" && !slices.Contains(settingsQualities, s.DefaultQuality) {
		problems = append(problems, fmt.Sprintf("default_quality: %q is not one of %v", s.DefaultQuality, settingsQualities))
	}
	if s.DefaultChannels != 0 && s.DefaultChannels != 1 && s.DefaultChannels != 2 {
		problems = append(problems, "default_channels: must be 1 or 2")
	}
	if s.DefaultSampleRate < 0 {
		problems = append(problems, "default_sample_rate: must be positive")
	}
	if s.VADSensitivity < 0 || s.VADSensitivity > 3 {
		problems = append(problems, "vad_sensitivity: must be between 0 and 3")
	}
	if s.SilenceThresholdSeconds < 0 {
		problems = append(problems, "silence_threshold_seconds: must not be negative")
	}
	if s.RetentionDays < 0 {
		problems = append(problems, "retention_days: must not be negative")
	}
	if s.AutoSplitEnabled && s.AutoSplitDurationMinutes <= 0 {
		problems = append(problems, "auto_split_duration_minutes: must be positive when auto split is enabled")
	}
	if s.EmailAlertsEnabled && s.EmailHost == "" {
		problems = append(problems, "email_host: required when email alerts are enabled")
	}
	if s.EmailPort < 0 || s.EmailPort > 65535 {
		problems = append(problems, "email_port: out of range")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid settings: %v", problems).
		Component("backend").
		Category(errors.CategoryValidation).
		Context("problems", problems).
		Build()
}
