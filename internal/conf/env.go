// env.go - environment variable bindings for radiorec
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings lists the variables bound explicitly so they are visible to
// Unmarshal even without a config file entry.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.debug", "RADIOREC_MAIN_DEBUG", validateEnvBool},
		{"log.level", "RADIOREC_LOG_LEVEL", nil},

		{"backend.url", "RADIOREC_BACKEND_URL", validateEnvURL},
		{"backend.token", "RADIOREC_BACKEND_TOKEN", nil},

		{"capture.device", "RADIOREC_CAPTURE_DEVICE", nil},
		{"capture.ffmpegpath", "RADIOREC_CAPTURE_FFMPEGPATH", nil},
		{"capture.retentiondays", "RADIOREC_CAPTURE_RETENTIONDAYS", validateEnvNonNegativeInt},

		{"mqtt.password", "RADIOREC_MQTT_PASSWORD", nil},
		{"sentry.dsn", "RADIOREC_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}
