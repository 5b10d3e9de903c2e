// Package observability provides the Prometheus registry of radiorec and
// the glue that feeds it from the controller and uploader.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/observability/metrics"
	"github.com/radiorec/radiorec/internal/upload"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Capture  *metrics.CaptureMetrics
	MQTT     *metrics.MQTTMetrics
	HTTP     *metrics.HTTPMetrics
}

// NewMetrics creates a registry with every collector registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	captureMetrics, err := metrics.NewCaptureMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Capture:  captureMetrics,
		MQTT:     mqttMetrics,
		HTTP:     httpMetrics,
	}, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{},
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      m.registry,
	})
}

// ControllerOptions wires the capture collectors into a controller: session
// events, the input level gauge and upload outcomes.
func (m *Metrics) ControllerOptions() []controller.Option {
	return []controller.Option{
		controller.WithHooks(controller.Hooks{OnEvent: m.Capture.ObserveEvent}),
		controller.WithMeterView(m.Capture),
	}
}

// UploadObserver records every upload attempt.
func (m *Metrics) UploadObserver() upload.Observer {
	return func(d *capture.Descriptor, o upload.Outcome, elapsed time.Duration) {
		m.Capture.ObserveUpload(o.OK(), d.Size(), elapsed)
	}
}

// promLogger routes promhttp errors to the module logger.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	log.Error(fmt.Sprint(v...))
}
