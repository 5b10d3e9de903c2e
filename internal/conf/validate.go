// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Allowed values shared with the capture and upload packages.
var (
	AllowedFormats    = []string{"webm", "ogg", "mp3", "flac", "wav"}
	AllowedQualities  = []string{"high", "medium", "low"}
	AllowedTypes      = []string{"antenne", "emission", "reunion"}
	AllowedMediaTypes = []string{"audio", "video"}
	allowedLogLevels  = []string{"trace", "debug", "info", "warn", "error"}
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) []string{
		validateLogSettings,
		validateBackendSettings,
		validateCaptureSettings,
		validateMeterSettings,
		validateIntegrationSettings,
	} {
		ve.Errors = append(ve.Errors, check(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLogSettings(s *Settings) []string {
	var errs []string
	if !oneOf(s.Log.Level, allowedLogLevels) {
		errs = append(errs, fmt.Sprintf("log.level %q must be one of %s", s.Log.Level, strings.Join(allowedLogLevels, ", ")))
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", s.Log.Format))
	}
	return errs
}

func validateBackendSettings(s *Settings) []string {
	var errs []string
	u, err := url.Parse(s.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend.url %q must be an http(s) URL", s.Backend.URL))
	}
	if s.Backend.Timeout <= 0 {
		errs = append(errs, "backend.timeout must be positive")
	}
	if s.Upload.Timeout <= 0 {
		errs = append(errs, "upload.timeout must be positive")
	}
	return errs
}

func validateCaptureSettings(s *Settings) []string {
	c := &s.Capture
	var errs []string
	if !oneOf(c.Format, AllowedFormats) {
		errs = append(errs, fmt.Sprintf("capture.format %q must be one of %s", c.Format, strings.Join(AllowedFormats, ", ")))
	}
	if !oneOf(c.Quality, AllowedQualities) {
		errs = append(errs, fmt.Sprintf("capture.quality %q must be one of %s", c.Quality, strings.Join(AllowedQualities, ", ")))
	}
	if !oneOf(c.Type, AllowedTypes) {
		errs = append(errs, fmt.Sprintf("capture.type %q must be one of %s", c.Type, strings.Join(AllowedTypes, ", ")))
	}
	if !oneOf(c.MediaType, AllowedMediaTypes) {
		errs = append(errs, fmt.Sprintf("capture.mediatype %q must be audio or video", c.MediaType))
	}
	if c.MediaType == "video" && c.Format != "webm" {
		errs = append(errs, "capture.format must be webm for video")
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		errs = append(errs, fmt.Sprintf("capture.samplerate %d out of range 8000-192000", c.SampleRate))
	}
	if c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, "capture.channels must be 1 or 2")
	}
	if c.RetentionDays < 0 {
		errs = append(errs, "capture.retentiondays must not be negative")
	}
	return errs
}

func validateMeterSettings(s *Settings) []string {
	m := &s.Meter
	var errs []string
	if m.Interval < 10*time.Millisecond {
		errs = append(errs, "meter.interval must be at least 10ms")
	}
	if m.FFTSize < 32 || m.FFTSize > 32768 || m.FFTSize&(m.FFTSize-1) != 0 {
		errs = append(errs, fmt.Sprintf("meter.fftsize %d must be a power of two between 32 and 32768", m.FFTSize))
	}
	if m.Smoothing < 0 || m.Smoothing >= 1 {
		errs = append(errs, "meter.smoothing must be in [0, 1)")
	}
	return errs
}

func validateIntegrationSettings(s *Settings) []string {
	var errs []string
	if s.WebServer.Enabled && s.WebServer.Listen == "" {
		errs = append(errs, "webserver.listen is required when the web server is enabled")
	}
	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required when MQTT is enabled")
		}
		if s.MQTT.Topic == "" {
			errs = append(errs, "mqtt.topic is required when MQTT is enabled")
		}
	}
	if s.Notify.Enabled && len(s.Notify.URLs) == 0 {
		errs = append(errs, "notify.urls needs at least one URL when notifications are enabled")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry.dsn is required when sentry is enabled")
	}
	return errs
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
