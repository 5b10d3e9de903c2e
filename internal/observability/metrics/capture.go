package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radiorec/radiorec/internal/capture"
)

// CaptureMetrics tracks recording sessions, uploads and the level meter.
type CaptureMetrics struct {
	sessionsTotal   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionElapsed  prometheus.Histogram
	chunksTotal     prometheus.Counter
	payloadBytes    prometheus.Histogram
	uploadsTotal    *prometheus.CounterVec
	uploadDuration  prometheus.Histogram
	uploadBytes     prometheus.Counter
	inputLevel      prometheus.Gauge
	operationsTotal *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
}

// NewCaptureMetrics creates and registers the capture collectors.
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

func (m *CaptureMetrics) initMetrics() {
	m.sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "capture_sessions_total",
		Help:      "Finished capture sessions by media type and outcome",
	}, []string{"media", "outcome"}) // outcome: completed or a failure kind

	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "capture_sessions_active",
		Help:      "Capture sessions that have not reached a terminal state",
	})

	m.sessionElapsed = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "capture_session_elapsed_seconds",
		Help:      "Recorded time of finished sessions",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1s, BucketFactor2, BucketCount12),
	})

	m.chunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "capture_chunks_total",
		Help:      "Encoded chunks appended to sessions",
	})

	m.payloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "capture_payload_bytes",
		Help:      "Size of assembled recording payloads",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor4, BucketCount12),
	})

	m.uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by status",
	}, []string{"status"})

	m.uploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "upload_duration_seconds",
		Help:      "Time spent sending a recording to the backend",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms*10, BucketFactor2, BucketCount12),
	})

	m.uploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "upload_bytes_total",
		Help:      "Payload bytes accepted by the backend",
	})

	m.inputLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "meter_input_level",
		Help:      "Most recent normalized input level in [0,1]",
	})

	m.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "operations_total",
		Help:      "Generic operations by status",
	}, []string{"operation", "status"})

	m.operationTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "operation_duration_seconds",
		Help:      "Generic operation durations",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"operation"})

	m.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "errors_total",
		Help:      "Errors by operation and type",
	}, []string{"operation", "error_type"})
}

func (m *CaptureMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsTotal, m.sessionsActive, m.sessionElapsed, m.chunksTotal, m.payloadBytes,
		m.uploadsTotal, m.uploadDuration, m.uploadBytes, m.inputLevel,
		m.operationsTotal, m.operationTime, m.errorsTotal,
	}
}

// Describe implements prometheus.Collector.
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// ObserveEvent updates session metrics from a controller event.
func (m *CaptureMetrics) ObserveEvent(ev capture.Event) {
	snap := ev.Snapshot
	switch ev.Kind {
	case capture.EventChunk:
		m.chunksTotal.Inc()
	case capture.EventState:
		switch snap.Status {
		case capture.StatusRequesting:
			m.sessionsActive.Inc()
		case capture.StatusCompleted:
			m.sessionsActive.Dec()
			m.sessionsTotal.WithLabelValues(string(snap.MediaType), "completed").Inc()
			m.sessionElapsed.Observe(float64(snap.Elapsed))
			m.payloadBytes.Observe(float64(snap.Bytes))
		case capture.StatusFailed:
			outcome := "failed"
			if snap.Failure != nil {
				outcome = snap.Failure.Kind.String()
			}
			// Sessions cancelled before Start never counted as active.
			if snap.MediaType != "" {
				m.sessionsActive.Dec()
			}
			m.sessionsTotal.WithLabelValues(string(snap.MediaType), outcome).Inc()
		}
	}
}

// ObserveUpload records one upload attempt.
func (m *CaptureMetrics) ObserveUpload(ok bool, bytes int, elapsed time.Duration) {
	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.uploadDuration.Observe(elapsed.Seconds())
	if ok {
		m.uploadBytes.Add(float64(bytes))
	}
}

// SetLevel implements the controller's meter view.
func (m *CaptureMetrics) SetLevel(level float64) {
	m.inputLevel.Set(level)
}

// RecordOperation implements Recorder.
func (m *CaptureMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *CaptureMetrics) RecordDuration(operation string, seconds float64) {
	m.operationTime.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *CaptureMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}
