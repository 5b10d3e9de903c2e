package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/errors"
)

func TestApply(t *testing.T) {
	t.Parallel()

	current := backend.DefaultSettings()
	current.ID = 4

	next, err := Apply(&current, []string{
		"default_format=flac",
		"retention_days=14",
		"auto_split_enabled=true",
		"silence_threshold_seconds=2.5",
		"naming_template={type}-{date}",
		"email_host=smtp.example.org",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4), next.ID)
	assert.Equal(t, "flac", next.DefaultFormat)
	assert.Equal(t, 14, next.RetentionDays)
	assert.True(t, next.AutoSplitEnabled)
	assert.InDelta(t, 2.5, next.SilenceThresholdSeconds, 1e-9)
	assert.Equal(t, "{type}-{date}", next.NamingTemplate)
	assert.Equal(t, "smtp.example.org", next.EmailHost)

	// the input is untouched
	assert.Equal(t, "mp3", current.DefaultFormat)
}

func TestApplyStringKeepsNumericText(t *testing.T) {
	t.Parallel()

	current := backend.DefaultSettings()
	next, err := Apply(&current, []string{"email_password=123456"})
	require.NoError(t, err)
	assert.Equal(t, "123456", next.EmailPassword)
}

func TestApplyRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		arg  string
	}{
		{"missing equals", "default_format"},
		{"empty key", "=mp3"},
		{"unknown key", "bitrate=128"},
		{"read-only id", "id=9"},
		{"read-only updated_at", "updated_at=2026-01-01T00:00:00Z"},
		{"bool expected", "auto_split_enabled=maybe"},
		{"number expected", "retention_days=soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			current := backend.DefaultSettings()
			_, err := Apply(&current, []string{tt.arg})
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation), "got %v", err)
		})
	}
}
