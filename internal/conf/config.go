// config.go: settings struct and the load/save flow for radiorec.
package conf

import (
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings holds process-wide switches.
type MainSettings struct {
	Name  string // instance name, shown in notifications and MQTT payloads
	Debug bool   // true to force debug logging everywhere
}

// LogSettings controls the central logger.
type LogSettings struct {
	Level    string // trace, debug, info, warn or error
	Format   string // text or json
	File     string // optional log file path, empty disables file output
	Timezone string // timezone for JSON timestamps
}

// BackendSettings describes the recordings backend.
type BackendSettings struct {
	URL       string        // base URL, e.g. http://localhost:8000
	Token     string        // optional bearer token
	Timeout   time.Duration // timeout for non-upload requests
	UserAgent string
}

// CaptureSettings holds the defaults for a new capture session.
type CaptureSettings struct {
	Device           string // capture device name, empty for the system default
	SampleRate       int    // PCM sample rate requested from the device
	Channels         int    // 1 or 2
	Format           string // webm, ogg, mp3, flac or wav
	Quality          string // high, medium or low
	Type             string // antenne, emission or reunion
	MediaType        string // audio or video
	FacingMode       string // camera hint for video sessions
	CameraDevice     string // ffmpeg camera input, picked from FacingMode when empty
	FfmpegPath       string // path to ffmpeg, resolved from PATH when empty
	TitleTemplate    string // upload title template
	FilenameTemplate string // custom_name template, empty keeps the generated name
	RetentionDays    int    // days until retained_until, 0 disables
}

// MeterSettings configures the level analyzer.
type MeterSettings struct {
	Interval  time.Duration // sampling cadence
	FFTSize   int           // analysis window, power of two
	Smoothing float64       // time-domain smoothing constant, 0..1
}

// UploadSettings configures the upload coordinator.
type UploadSettings struct {
	Timeout time.Duration // timeout for a single upload request
}

// WebServerSettings configures the control API.
type WebServerSettings struct {
	Enabled bool
	Listen  string // listen address, e.g. :8090
}

// MQTTSettings configures the lifecycle publisher.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:1883
	Topic    string // base topic, state and uploaded are published below it
	ClientID string
	Username string
	Password string
}

// NotifySettings configures failure notifications.
type NotifySettings struct {
	Enabled bool
	URLs    []string // shoutrrr service URLs
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// MetricsSettings toggles the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
}

// Settings contains all configuration options for radiorec.
type Settings struct {
	Main      MainSettings
	Log       LogSettings
	Backend   BackendSettings
	Capture   CaptureSettings
	Meter     MeterSettings
	Upload    UploadSettings
	WebServer WebServerSettings
	MQTT      MQTTSettings
	Notify    NotifySettings
	Sentry    SentrySettings
	Metrics   MetricsSettings

	// ConfigFile is the file the settings were read from, runtime value
	ConfigFile string `yaml:"-"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// When configFile is empty the default search paths are used and a missing
// file is not an error; the embedded defaults apply instead.
func Load(configFile string) (*Settings, error) {
	v := viper.New()

	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if settings.Main.Debug && settings.Log.Level != "trace" {
		settings.Log.Level = "debug"
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// initViper applies defaults, environment bindings and the config file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix("RADIOREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				FileContext(configFile, 0).
				Context("operation", "read-config").
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if stderrors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Build()
	}
	return nil
}

// DefaultConfigYAML returns the embedded commented default configuration.
func DefaultConfigYAML() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// WriteDefaultConfig writes the embedded default configuration to path.
// An existing file is left alone unless overwrite is set.
func WriteDefaultConfig(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("config file %s already exists", path).
				Component("conf").
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	data, err := DefaultConfigYAML()
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	return writeFileAtomic(path, data)
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath. Comments and key order of an
// existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return writeFileAtomic(configPath, yamlData)
}

// writeFileAtomic writes through a temporary file in the target directory.
func writeFileAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, path); err != nil {
		if err := moveFile(tempFileName, path); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}
	return nil
}
