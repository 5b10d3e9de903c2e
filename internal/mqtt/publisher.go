package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/observability/metrics"
	"github.com/radiorec/radiorec/internal/upload"
)

const defaultQueueSize = 64

type message struct {
	topic   string
	payload []byte
	retain  bool
}

// Publisher forwards controller events to a Client from its own goroutine
// so the controller is never blocked by the broker.
type Publisher struct {
	client   Client
	topic    string
	instance string
	timeout  time.Duration
	now      func() time.Time
	log      logger.Logger
	metrics  *metrics.MQTTMetrics

	queue     chan message
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	dropped   int
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithInstance sets the instance name included in every payload.
func WithInstance(name string) PublisherOption {
	return func(p *Publisher) { p.instance = name }
}

// WithQueueSize sets the number of pending messages kept before new ones are dropped.
func WithQueueSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan message, n)
		}
	}
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = d }
}

// WithPublisherMetrics counts dropped messages on m.
func WithPublisherMetrics(m *metrics.MQTTMetrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func withClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher starts the publishing goroutine. Close must be called to stop it.
func NewPublisher(client Client, topic string, opts ...PublisherOption) *Publisher {
	if topic == "" {
		topic = DefaultConfig().Topic
	}
	p := &Publisher{
		client:  client,
		topic:   topic,
		timeout: DefaultConfig().PublishTimeout,
		now:     time.Now,
		log:     GetLogger(),
		queue:   make(chan message, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Hooks returns controller hooks that publish state changes and upload outcomes.
func (p *Publisher) Hooks() controller.Hooks {
	return controller.Hooks{
		OnEvent:  p.PublishEvent,
		OnUpload: p.PublishUpload,
	}
}

// PublishEvent queues a retained state message. Only status changes are
// published; chunk and tick events are ignored.
func (p *Publisher) PublishEvent(ev capture.Event) {
	if ev.Kind != capture.EventState {
		return
	}
	p.enqueue(StateTopic(p.topic, "state"), NewStateDTO(p.instance, ev.Snapshot, p.now()), true)
}

// PublishUpload queues an upload message.
func (p *Publisher) PublishUpload(d *capture.Descriptor, o upload.Outcome) {
	p.enqueue(StateTopic(p.topic, "uploaded"), NewUploadDTO(p.instance, d, o, p.now()), false)
}

// Dropped returns how many messages were discarded because the queue was full.
func (p *Publisher) Dropped() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

func (p *Publisher) enqueue(topic string, v any, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error("failed to marshal MQTT payload", logger.String("topic", topic), logger.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- message{topic: topic, payload: payload, retain: retain}:
	default:
		p.dropped++
		p.countDrop(metrics.DropQueueFull)
		p.log.Warn("MQTT queue full, dropping message", logger.String("topic", topic))
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if !p.client.IsConnected() {
			p.log.Debug("MQTT client not connected, skipping message", logger.String("topic", msg.topic))
			p.countDrop(metrics.DropOffline)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.client.Publish(ctx, msg.topic, msg.payload, msg.retain)
		cancel()
		if err != nil {
			p.log.Warn("failed to publish MQTT message",
				logger.String("topic", msg.topic),
				logger.Error(err))
		}
	}
}

func (p *Publisher) countDrop(reason string) {
	if p.metrics != nil {
		p.metrics.IncDropped(reason)
	}
}

// Close drains pending messages and stops the goroutine. The client is not
// disconnected.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	<-p.done
}
