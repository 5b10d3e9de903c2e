// Package app assembles radiorec from its settings: the shared HTTP client,
// the backend client, the upload coordinator, metrics and the recording
// controller with its observers.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/buildinfo"
	"github.com/radiorec/radiorec/internal/capture/device"
	"github.com/radiorec/radiorec/internal/capture/encoder"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/httpclient"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/meter"
	"github.com/radiorec/radiorec/internal/mqtt"
	"github.com/radiorec/radiorec/internal/notification"
	"github.com/radiorec/radiorec/internal/observability"
	"github.com/radiorec/radiorec/internal/observability/metrics"
	"github.com/radiorec/radiorec/internal/upload"
)

// mqttConnectTimeout bounds the first broker connection attempt.
const mqttConnectTimeout = 10 * time.Second

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// App owns the long-lived collaborators shared by every command.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	HTTP     *httpclient.Client
	Backend  *backend.Client
	Metrics  *observability.Metrics // nil unless metrics are enabled
	Uploader *upload.Coordinator

	log     logger.Logger
	mu      sync.Mutex
	closers []func()
}

// New builds the backend side of the application. It does not touch capture
// devices, so it is cheap enough for one-shot commands.
func New(settings *conf.Settings, build *buildinfo.Context) (*App, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if build == nil {
		build = &buildinfo.Context{}
	}

	a := &App{
		Settings: settings,
		Build:    build,
		log:      GetLogger(),
	}

	userAgent := settings.Backend.UserAgent
	if userAgent == "" {
		userAgent = build.UserAgent()
	}
	a.HTTP = httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.Backend.Timeout,
		UserAgent:      userAgent,
	})
	a.addCloser(a.HTTP.Close)

	b, err := backend.NewClient(backend.Config{
		BaseURL: settings.Backend.URL,
		Token:   settings.Backend.Token,
	}, a.HTTP)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Backend = b

	uploadOpts := []upload.Option{upload.WithTimeout(settings.Upload.Timeout)}
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			a.Close()
			return nil, errors.New(err).
				Component("app").
				Category(errors.CategoryConfiguration).
				Context("operation", "init-metrics").
				Build()
		}
		a.Metrics = m
		uploadOpts = append(uploadOpts, upload.WithObserver(m.UploadObserver()))
	}
	a.Uploader = upload.NewCoordinator(b, uploadOpts...)

	return a, nil
}

// NewController wires a recording controller from the capture, meter, MQTT
// and notification settings. extra options are applied last.
func (a *App) NewController(ctx context.Context, extra ...controller.Option) (*controller.Controller, error) {
	s := a.Settings

	deps := controller.Deps{
		Acquirer: &device.Acquirer{
			DeviceName:   s.Capture.Device,
			CameraDevice: s.Capture.CameraDevice,
			SampleRate:   s.Capture.SampleRate,
			Channels:     s.Capture.Channels,
		},
		Encoder:  encoder.New(s.Capture.FfmpegPath, nil),
		Uploader: a.Uploader,
		Trimmer:  a.Backend,
		Analyzer: meter.New(meter.Options{
			Interval:  s.Meter.Interval,
			FFTSize:   s.Meter.FFTSize,
			Smoothing: s.Meter.Smoothing,
		}),
	}

	opts := []controller.Option{
		controller.WithTitleTemplate(s.Capture.TitleTemplate),
		controller.WithNameTemplate(s.Capture.FilenameTemplate),
	}
	if a.Metrics != nil {
		opts = append(opts, a.Metrics.ControllerOptions()...)
	}

	if s.Notify.Enabled {
		svcOpts := []notification.Option{notification.WithInstance(s.Main.Name)}
		if a.Metrics != nil {
			svcOpts = append(svcOpts, notification.WithRecorder(a.Metrics.Capture))
		}
		svc, err := notification.NewFromSettings(&s.Notify, svcOpts...)
		if err != nil {
			return nil, err
		}
		a.addCloser(svc.Close)
		opts = append(opts, controller.WithHooks(svc.Hooks()))
	}

	if s.MQTT.Enabled {
		pub, err := a.newPublisher(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, controller.WithHooks(pub.Hooks()))
	}

	opts = append(opts, extra...)
	c := controller.New(deps, controller.SelectionsFromSettings(&s.Capture), opts...)
	a.addCloser(c.Close)
	return c, nil
}

// newPublisher connects to the broker. A failed first connection is logged
// and not fatal; the publisher skips messages until the broker is reachable.
func (a *App) newPublisher(ctx context.Context) (*mqtt.Publisher, error) {
	var m *metrics.MQTTMetrics
	if a.Metrics != nil {
		m = a.Metrics.MQTT
	}
	client, err := mqtt.NewClient(&a.Settings.MQTT, m)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		a.log.Warn("mqtt broker unavailable, lifecycle messages are skipped until it connects",
			logger.String("broker", a.Settings.MQTT.Broker),
			logger.Error(err))
	}

	pub := mqtt.NewPublisher(client, a.Settings.MQTT.Topic,
		mqtt.WithInstance(a.Settings.Main.Name),
		mqtt.WithPublisherMetrics(m))
	// closers run in reverse, so the publisher drains before the client goes
	a.addCloser(client.Disconnect)
	a.addCloser(pub.Close)
	return pub, nil
}

func (a *App) addCloser(fn func()) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// Close releases everything New and NewController created, newest first.
// It is safe to call more than once.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
