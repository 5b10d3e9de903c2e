package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a lifecycle message never reached the broker.
const (
	DropQueueFull = "queue_full"
	DropOffline   = "offline"
)

// MQTTMetrics covers the lifecycle publisher: broker link state, per-topic
// publish results and messages that were discarded before publishing.
type MQTTMetrics struct {
	connected  prometheus.Gauge
	published  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	reconnects prometheus.Counter
	latency    prometheus.Histogram
	payload    prometheus.Histogram
}

// NewMQTTMetrics registers the publisher collectors on registry.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 while the broker connection is up",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "published_total",
			Help:      "Lifecycle messages handed to the broker by topic leaf and result",
		}, []string{"leaf", "result"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "dropped_total",
			Help:      "Lifecycle messages discarded before publishing",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after the broker link dropped",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "publish_seconds",
			Help:      "Time until the broker acknowledged a publish",
			Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		}),
		payload: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "payload_bytes",
			Help:      "Size of published JSON payloads",
			Buckets:   prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
		}),
	}

	for _, c := range []prometheus.Collector{m.connected, m.published, m.dropped, m.reconnects, m.latency, m.payload} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register mqtt metrics: %w", err)
		}
	}
	return m, nil
}

// SetConnected records the broker link state.
func (m *MQTTMetrics) SetConnected(up bool) {
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// ObservePublish records one publish attempt. The label is the last topic
// segment so per-instance prefixes do not multiply series.
func (m *MQTTMetrics) ObservePublish(topic string, size int, elapsed time.Duration, err error) {
	result := StatusSuccess
	if err != nil {
		result = StatusError
	}
	m.published.WithLabelValues(topicLeaf(topic), result).Inc()
	if err != nil {
		return
	}
	m.latency.Observe(elapsed.Seconds())
	m.payload.Observe(float64(size))
}

// IncDropped counts a message discarded for reason.
func (m *MQTTMetrics) IncDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// IncReconnect counts a reconnect attempt.
func (m *MQTTMetrics) IncReconnect() {
	m.reconnects.Inc()
}

func topicLeaf(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
