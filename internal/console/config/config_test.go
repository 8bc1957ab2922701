package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, TransportNone, cfg.Push.Transport)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 120*time.Second, cfg.Backend.GenerateTimeout)
	assert.Equal(t, int64(16<<20), cfg.MaxImageBytes)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BACKEND_URL", "http://catalog:5000")
	t.Setenv("BACKEND_TIMEOUT", "5")
	t.Setenv("BACKEND_GENERATE_TIMEOUT", "90s")
	t.Setenv("PUSH_TRANSPORT", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Backend.GenerateTimeout)
	assert.Equal(t, TransportKafka, cfg.Push.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Push.Brokers)

	kc := cfg.KafkaConfig()
	assert.Equal(t, []string{"product-generation-events"}, kc.Topics)

	cc := cfg.ClientConfig()
	assert.Equal(t, "http://catalog:5000", cc.BaseURL)
	assert.Equal(t, 5, cc.MaxFailures)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown transport", "PUSH_TRANSPORT", "nats"},
		{"bad backend url", "BACKEND_URL", "not a url"},
		{"bad port", "PORT", "http"},
		{"sample ratio above one", "TRACE_SAMPLE_RATIO", "1.5"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_RedisTransportNeedsAddr(t *testing.T) {
	t.Setenv("PUSH_TRANSPORT", "redis")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "product_generation_events", cfg.Push.Channel)
}
