package capture

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusIdle Status = iota
	StatusRequesting
	StatusRecording
	StatusStopping
	StatusFinalizing
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRequesting:
		return "requesting"
	case StatusRecording:
		return "recording"
	case StatusStopping:
		return "stopping"
	case StatusFinalizing:
		return "finalizing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MarshalText renders the status name in JSON and MQTT payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusIdle; st <= StatusFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown capture status %q", text)
}

// MediaType selects which tracks are acquired.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// BitrateTier is the coarse quality selector.
type BitrateTier string

const (
	TierHigh   BitrateTier = "high"
	TierMedium BitrateTier = "medium"
	TierLow    BitrateTier = "low"
)

// Bitrate returns the encoder bitrate in bits per second.
func (t BitrateTier) Bitrate() int {
	switch t {
	case TierHigh:
		return 128000
	case TierMedium:
		return 64000
	case TierLow:
		return 32000
	default:
		return 0
	}
}

// Containers the encoders can produce.
var Containers = []string{"webm", "ogg", "mp3", "flac", "wav"}

// Config is the by-value configuration of one session.
type Config struct {
	MediaType  MediaType
	Container  string      // container/codec hint, one of Containers
	Tier       BitrateTier // high, medium or low
	FacingMode string      // camera hint, video only
	Type       string      // recording type tag: antenne, emission or reunion

	// Metadata prefills the descriptor's metadata bag. Type and Format are
	// filled from the config when left empty.
	Metadata Metadata
}

// Validate checks the config before a session leaves idle.
func (c Config) Validate() error {
	if c.MediaType != MediaAudio && c.MediaType != MediaVideo {
		return NewFailure(KindValidationFailure, fmt.Sprintf("unknown media type %q", c.MediaType), nil)
	}
	if !validContainer(c.Container) {
		return NewFailure(KindValidationFailure, fmt.Sprintf("unsupported container %q", c.Container), nil)
	}
	if c.MediaType == MediaVideo && c.Container != "webm" {
		return NewFailure(KindValidationFailure, "video sessions record webm only", nil)
	}
	if c.Tier.Bitrate() == 0 {
		return NewFailure(KindValidationFailure, fmt.Sprintf("unknown quality %q", c.Tier), nil)
	}
	if c.Type == "" {
		return NewFailure(KindValidationFailure, "recording type is required", nil)
	}
	return nil
}

func validContainer(c string) bool {
	for _, allowed := range Containers {
		if c == allowed {
			return true
		}
	}
	return false
}

// Constraints is what the session asks the platform to acquire.
type Constraints struct {
	Audio      bool
	Video      bool
	FacingMode string
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	SessionID string      `json:"session_id"`
	Status    Status      `json:"status"`
	MediaType MediaType   `json:"media_type"`
	Container string      `json:"container"`
	Tier      BitrateTier `json:"quality"`
	Bitrate   int         `json:"bitrate"`
	Chunks    int         `json:"chunks"`
	Bytes     int64       `json:"bytes"`
	Elapsed   int         `json:"elapsed_seconds"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	Failure   *Failure    `json:"-"`
}

// EventKind tells why an Event was emitted.
type EventKind int

const (
	EventState EventKind = iota // status changed
	EventChunk                  // a chunk was appended
	EventTick                   // elapsed counter advanced
)

// Event is delivered on Session.Events.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}
