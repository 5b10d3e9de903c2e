package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "webm", settings.Capture.Format)
	assert.Equal(t, "high", settings.Capture.Quality)
	assert.Equal(t, "antenne", settings.Capture.Type)
	assert.Equal(t, 50*time.Millisecond, settings.Meter.Interval)
	assert.Equal(t, 256, settings.Meter.FFTSize)
	assert.InDelta(t, 0.8, settings.Meter.Smoothing, 1e-9)
	assert.Equal(t, 30*time.Second, settings.Backend.Timeout)
	assert.Equal(t, DefaultTitleTemplate, settings.Capture.TitleTemplate)
	assert.Equal(t, path, settings.ConfigFile)
	assert.Same(t, settings, GetSettings())
}

func TestWriteDefaultConfigRefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "main:\n  name: keep\n")
	require.Error(t, WriteDefaultConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "keep")

	require.NoError(t, WriteDefaultConfig(path, true))
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: https://radio.example.org
capture:
  format: mp3
  quality: low
  retentiondays: 30
`)
	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://radio.example.org", settings.Backend.URL)
	assert.Equal(t, "mp3", settings.Capture.Format)
	assert.Equal(t, "low", settings.Capture.Quality)
	assert.Equal(t, 30, settings.Capture.RetentionDays)
	assert.Equal(t, 48000, settings.Capture.SampleRate)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RADIOREC_BACKEND_TOKEN", "s3cret-token")
	t.Setenv("RADIOREC_CAPTURE_TYPE", "reunion")

	settings, err := Load(writeConfig(t, "capture:\n  type: emission\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3cret-token", settings.Backend.Token)
	assert.Equal(t, "reunion", settings.Capture.Type)
}

func TestLoadDebugRaisesLogLevel(t *testing.T) {
	settings, err := Load(writeConfig(t, "main:\n  debug: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.Log.Level)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := Load(writeConfig(t, `
capture:
  format: aiff
  type: podcast
meter:
  fftsize: 300
`))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	settings, err := Load(writeConfig(t, "capture:\n  format: flac\n"))
	require.NoError(t, err)

	settings.Capture.Quality = "medium"
	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(out, settings))

	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, "flac", reloaded.Capture.Format)
	assert.Equal(t, "medium", reloaded.Capture.Quality)
	assert.Equal(t, settings.Upload.Timeout, reloaded.Upload.Timeout)
}
