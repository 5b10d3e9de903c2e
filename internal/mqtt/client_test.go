package mqtt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/observability/metrics"
)

// closedPort returns a loopback address with nothing listening on it.
func closedPort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestNewClientRequiresBroker(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, nil)
	require.Error(t, err)

	_, err = NewClient(&conf.MQTTSettings{Enabled: true}, nil)
	require.Error(t, err)
	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryConfiguration, ee.Category)
}

func TestNewClientAppliesSettings(t *testing.T) {
	t.Parallel()

	c, err := NewClient(&conf.MQTTSettings{
		Broker:   "tcp://127.0.0.1:1883",
		Topic:    "studio",
		ClientID: "desk-1",
		Username: "u",
		Password: "p",
	}, nil)
	require.NoError(t, err)

	impl, ok := c.(*client)
	require.True(t, ok)
	assert.Equal(t, "studio", impl.config.Topic)
	assert.Equal(t, "desk-1", impl.config.ClientID)
	assert.Equal(t, DefaultConfig().ConnectTimeout, impl.config.ConnectTimeout)
}

func TestConnectInvalidBrokerURL(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "not a url"
	c := newClient(cfg, nil)

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.False(t, c.IsConnected())
}

func TestConnectRefused(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "tcp://" + closedPort(t)
	cfg.ConnectTimeout = 2 * time.Second
	c := newClient(cfg, nil)
	defer c.Disconnect()

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.False(t, c.IsConnected())
}

func TestConnectCooldown(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "tcp://" + closedPort(t)
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReconnectCooldown = time.Hour
	c := newClient(cfg, nil)
	defer c.Disconnect()

	_ = c.Connect(t.Context())
	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1883"
	c := newClient(cfg, nil)

	err := c.Publish(context.Background(), "radiorec/state", []byte(`{}`), false)
	require.Error(t, err)
	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryMQTTPublish, ee.Category)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMQTTMetrics(registry)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1883"
	c := newClient(cfg, m)

	assert.NotPanics(t, func() {
		c.Disconnect()
		c.Disconnect()
	})

	count, err := testutil.GatherAndCount(registry, "radiorec_mqtt_connected")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
