package mqtt

import (
	"strings"
	"time"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/upload"
)

// StateDTO is published on <topic>/state whenever a session changes status.
//
// Field names are part of the MQTT contract consumed by automations.
type StateDTO struct {
	Instance  string    `json:"instance,omitempty"`
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	MediaType string    `json:"media_type"`
	Container string    `json:"container"`
	Quality   string    `json:"quality"`
	Elapsed   int       `json:"elapsed_seconds"`
	Bytes     int64     `json:"bytes"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UploadDTO is published on <topic>/uploaded after each upload attempt.
type UploadDTO struct {
	Instance    string    `json:"instance,omitempty"`
	OK          bool      `json:"ok"`
	RecordingID int64     `json:"recording_id,omitempty"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Format      string    `json:"format"`
	Filename    string    `json:"filename"`
	Bytes       int       `json:"bytes"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewStateDTO converts a session snapshot.
func NewStateDTO(instance string, s capture.Snapshot, now time.Time) StateDTO {
	dto := StateDTO{
		Instance:  instance,
		SessionID: s.SessionID,
		Status:    s.Status.String(),
		MediaType: string(s.MediaType),
		Container: s.Container,
		Quality:   string(s.Tier),
		Elapsed:   s.Elapsed,
		Bytes:     s.Bytes,
		Timestamp: now.UTC(),
	}
	if s.Failure != nil {
		dto.Error = s.Failure.Message()
	}
	return dto
}

// NewUploadDTO converts an upload outcome.
func NewUploadDTO(instance string, d *capture.Descriptor, o upload.Outcome, now time.Time) UploadDTO {
	dto := UploadDTO{
		Instance:    instance,
		OK:          o.OK(),
		RecordingID: o.ID,
		Timestamp:   now.UTC(),
	}
	if d != nil {
		meta := d.Metadata()
		dto.Title = meta.Title
		dto.Type = meta.Type
		dto.Format = meta.Format
		dto.Filename = d.Filename()
		dto.Bytes = d.Size()
	}
	if o.Failure != nil {
		dto.Error = o.Failure.Message()
	}
	return dto
}

// StateTopic joins the base topic and a leaf.
func StateTopic(base, leaf string) string {
	return strings.TrimRight(base, "/") + "/" + leaf
}
