package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Log:     LogSettings{Level: "info", Format: "text"},
		Backend: BackendSettings{URL: "http://localhost:8000", Timeout: time.Second},
		Capture: CaptureSettings{
			Format: "webm", Quality: "high", Type: "antenne", MediaType: "audio",
			SampleRate: 48000, Channels: 1,
		},
		Meter:  MeterSettings{Interval: 50 * time.Millisecond, FFTSize: 256, Smoothing: 0.8},
		Upload: UploadSettings{Timeout: time.Minute},
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"valid", func(*Settings) {}, ""},
		{"bad backend url", func(s *Settings) { s.Backend.URL = "ftp://x" }, "backend.url"},
		{"video needs webm", func(s *Settings) { s.Capture.MediaType = "video"; s.Capture.Format = "mp3" }, "webm for video"},
		{"stereo ok", func(s *Settings) { s.Capture.Channels = 2 }, ""},
		{"three channels", func(s *Settings) { s.Capture.Channels = 3 }, "capture.channels"},
		{"smoothing one", func(s *Settings) { s.Meter.Smoothing = 1 }, "meter.smoothing"},
		{"mqtt without broker", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Topic = "t" }, "mqtt.broker"},
		{"notify without urls", func(s *Settings) { s.Notify.Enabled = true }, "notify.urls"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
		{"negative retention", func(s *Settings) { s.Capture.RetentionDays = -1 }, "retentiondays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateToolPath(t *testing.T) {
	_, err := ValidateToolPath("", "radiorec-definitely-missing-tool")
	require.Error(t, err)
}
