package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/observability/metrics"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
	stopOnce        sync.Once
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates an MQTT client from the mqtt settings section. m may be nil.
func NewClient(settings *conf.MQTTSettings, m *metrics.MQTTMetrics) (Client, error) {
	if settings == nil || settings.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	cfg := DefaultConfig()
	cfg.Broker = settings.Broker
	cfg.Username = settings.Username
	cfg.Password = settings.Password
	if settings.ClientID != "" {
		cfg.ClientID = settings.ClientID
	}
	if settings.Topic != "" {
		cfg.Topic = settings.Topic
	}
	return newClient(cfg, m), nil
}

func newClient(cfg Config, m *metrics.MQTTMetrics) *client {
	return &client{
		config:        cfg,
		reconnectStop: make(chan struct{}),
		metrics:       m,
		log:           GetLogger().With(logger.String("broker", cfg.Broker)),
	}
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < c.config.ReconnectCooldown {
		return fmt.Errorf("connection attempt too recent, last attempt was %v ago", time.Since(c.lastConnAttempt))
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Host == "" {
		return errors.Newf("invalid broker URL %q", c.config.Broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) {
				return dnsErr
			}
			return fmt.Errorf("failed to resolve hostname %s: %w", host, err)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetWill(StateTopic(c.config.Topic, "availability"), "offline", 1, true)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.config.ConnectTimeout):
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("connection error: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Build()
	}

	c.updateStatus(true)
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnectedLocked() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 1, retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.config.PublishTimeout):
		c.log.Warn("publish timeout", logger.String("topic", topic))
		err := fmt.Errorf("publish timeout")
		c.observe(topic, payload, start, err)
		return err
	}
	if err := token.Error(); err != nil {
		c.observe(topic, payload, start, err)
		return errors.New(err).Component("mqtt").Category(errors.CategoryMQTTPublish).Build()
	}

	c.observe(topic, payload, start, nil)
	c.log.Trace("published", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnectedLocked()
}

func (c *client) isConnectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.stopOnce.Do(func() { close(c.reconnectStop) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	if c.isConnectedLocked() {
		// a clean disconnect does not fire the will
		c.internalClient.Publish(StateTopic(c.config.Topic, "availability"), 1, true, "offline").
			WaitTimeout(c.config.DisconnectTimeout)
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.updateStatus(false)
	}
}

func (c *client) updateStatus(connected bool) {
	if c.metrics != nil {
		c.metrics.SetConnected(connected)
	}
}

func (c *client) observe(topic string, payload []byte, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObservePublish(topic, len(payload), time.Since(start), err)
	}
}

// onConnect runs on paho's goroutine and must not take c.mu, which Connect
// holds while waiting for the token.
func (c *client) onConnect(cl mqtt.Client) {
	c.log.Info("connected to MQTT broker")
	c.updateStatus(true)
	cl.Publish(StateTopic(c.config.Topic, "availability"), 1, true, "online")
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	c.updateStatus(false)
	c.startReconnectTimer()
}

func (c *client) startReconnectTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		select {
		case <-c.reconnectStop:
			return
		default:
			c.reconnectWithBackoff()
		}
	})
}

func (c *client) reconnectWithBackoff() {
	backoff := time.Second
	maxBackoff := 5 * time.Minute

	for {
		if c.IsConnected() {
			return
		}
		if c.metrics != nil {
			c.metrics.IncReconnect()
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			c.log.Info("reconnected to MQTT broker")
			return
		}

		c.log.Warn("failed to reconnect to MQTT broker",
			logger.Error(err),
			logger.Duration("retry_in", backoff))

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		case <-c.reconnectStop:
			return
		}
	}
}
