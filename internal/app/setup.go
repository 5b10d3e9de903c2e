package app

import (
	"time"

	"github.com/radiorec/radiorec/internal/buildinfo"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
)

// sentryFlushTimeout bounds how long shutdown waits for queued events.
const sentryFlushTimeout = 2 * time.Second

// LoggingConfig maps the log settings section onto the central logger.
func LoggingConfig(s *conf.LogSettings) *logger.LoggingConfig {
	cfg := &logger.LoggingConfig{
		DefaultLevel: s.Level,
		Timezone:     s.Timezone,
		Console: &logger.ConsoleOutput{
			Enabled: true,
			Level:   s.Level,
			Format:  s.Format,
		},
	}
	if s.File != "" {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    s.File,
			Level:   s.Level,
		}
	}
	return cfg
}

// SetupLogging installs the central logger described by settings as the
// global logger. The returned function flushes and closes it.
func SetupLogging(settings *conf.Settings) (func(), error) {
	cl, err := logger.NewCentralLogger(LoggingConfig(&settings.Log))
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "setup-logging").
			Build()
	}
	logger.SetGlobal(cl)
	return func() {
		_ = cl.Flush()
		_ = cl.Close()
	}, nil
}

// SetupSentry enables error telemetry when configured. A failed init is
// logged and telemetry stays off.
func SetupSentry(settings *conf.Settings, build *buildinfo.Context) func() {
	if !settings.Sentry.Enabled || settings.Sentry.DSN == "" {
		return func() {}
	}
	if err := errors.InitSentry(settings.Sentry.DSN, build.Release()); err != nil {
		GetLogger().Warn("error telemetry disabled", logger.Error(err))
		return func() {}
	}
	GetLogger().Info("error telemetry enabled", logger.String("release", build.Release()))
	return func() { errors.FlushSentry(sentryFlushTimeout) }
}
