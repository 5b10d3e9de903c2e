package capture

import (
	"bytes"
	"io"
	"time"
)

// Metadata is the descriptive bag sent alongside the payload.
type Metadata struct {
	Title         string     `json:"title"`
	Type          string     `json:"type"`   // antenne, emission or reunion
	Format        string     `json:"format"` // target format requested from the backend
	CustomName    string     `json:"custom_name,omitempty"`
	RetainedUntil *time.Time `json:"retained_until,omitempty"`
}

func (m Metadata) clone() Metadata {
	if m.RetainedUntil != nil {
		t := *m.RetainedUntil
		m.RetainedUntil = &t
	}
	return m
}

// Descriptor is the finished payload of a session. It is immutable:
// accessors return copies of metadata and the payload must not be modified.
type Descriptor struct {
	payload   []byte
	filename  string
	mimeType  string
	meta      Metadata
	sessionID string
	duration  time.Duration
	createdAt time.Time
}

// NewDescriptor wraps an existing payload, e.g. a file chosen for upload.
func NewDescriptor(payload []byte, filename, mimeType string, meta Metadata) *Descriptor {
	return &Descriptor{
		payload:   payload,
		filename:  filename,
		mimeType:  mimeType,
		meta:      meta.clone(),
		createdAt: time.Now(),
	}
}

// assemble concatenates chunks in order with a single allocation.
func assemble(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Payload returns the assembled bytes. Callers must treat them as read-only.
func (d *Descriptor) Payload() []byte { return d.payload }

// Reader returns a fresh reader over the payload.
func (d *Descriptor) Reader() io.Reader { return bytes.NewReader(d.payload) }

// Size is the payload length in bytes.
func (d *Descriptor) Size() int { return len(d.payload) }

func (d *Descriptor) Filename() string { return d.filename }

func (d *Descriptor) MIMEType() string { return d.mimeType }

// Metadata returns a copy of the metadata bag.
func (d *Descriptor) Metadata() Metadata { return d.meta.clone() }

// SessionID is empty for descriptors that did not come from a session.
func (d *Descriptor) SessionID() string { return d.sessionID }

// Duration is the recorded wall time, zero when unknown.
func (d *Descriptor) Duration() time.Duration { return d.duration }

func (d *Descriptor) CreatedAt() time.Time { return d.createdAt }

// WithMetadata returns a new descriptor sharing the payload with m as metadata.
func (d *Descriptor) WithMetadata(m Metadata) *Descriptor {
	cp := *d
	cp.meta = m.clone()
	return &cp
}
