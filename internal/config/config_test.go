package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 9090, cfg.GRPC.Port)
	assert.Equal(t, "sandbox", cfg.Gateway.Driver)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "basic", cfg.Carrier.AddressDriver)
	assert.Equal(t, "static", cfg.Carrier.TrackerDriver)
	assert.Equal(t, 8, cfg.Engine.BulkConcurrency)
	assert.Equal(t, "USD", cfg.Engine.DefaultCurrency)
	assert.Equal(t, "orders.events", cfg.Messaging.Kafka.Topic)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN, "reader falls back to writer")
}

func TestNewEnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_DRIVER", "noop")
	t.Setenv("ENGINE_DEFAULT_CURRENCY", "eur")
	t.Setenv("ENGINE_BULK_CONCURRENCY", "0")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("MESSAGING_ENABLED", "false")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "noop", cfg.Gateway.Driver)
	assert.Equal(t, "EUR", cfg.Engine.DefaultCurrency, "currency is normalised")
	assert.Equal(t, 1, cfg.Engine.BulkConcurrency, "concurrency floors at 1")
	assert.Equal(t, "noop", cfg.Cache.Driver)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
}

func TestNewRejectsBadValues(t *testing.T) {
	t.Setenv("GATEWAY_DRIVER", "stripe")
	_, err := New()
	assert.Error(t, err)
}

func TestNewRejectsBadCurrency(t *testing.T) {
	t.Setenv("ENGINE_DEFAULT_CURRENCY", "DOLLARS")
	_, err := New()
	assert.Error(t, err)
}
