// Package notification delivers failure and upload notices to external
// services through shoutrrr.
package notification

import (
	"context"
	"time"
)

// Type classifies a notification so providers can filter what they accept.
type Type string

const (
	TypeError  Type = "error"
	TypeUpload Type = "upload"
	TypeInfo   Type = "info"
)

// AllTypes lists every notification type.
var AllTypes = []Type{TypeError, TypeUpload, TypeInfo}

// Notification is a single message to deliver.
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Component string
	Timestamp time.Time
}

// Provider is a push delivery backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
	SupportsType(t Type) bool
}
