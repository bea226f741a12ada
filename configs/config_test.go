package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://api.india.delta.exchange", cfg.Delta.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Delta.Timeout)
	assert.Equal(t, "fills", cfg.Monitor.TradeSource)
	assert.Equal(t, 0.001, cfg.Sizing.SizeIncrement)
	assert.Equal(t, "@every 30s", cfg.Monitor.SyncSchedule)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DELTA_TIMEOUT", "20s")
	t.Setenv("TRADE_SOURCE", "positions")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 20*time.Second, cfg.Delta.Timeout)
	assert.Equal(t, "positions", cfg.Monitor.TradeSource)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"timeout too short":   {"DELTA_TIMEOUT", "2s"},
		"timeout too long":    {"DELTA_TIMEOUT", "1m"},
		"unknown source":      {"TRADE_SOURCE", "orders"},
		"zero size increment": {"SIZE_INCREMENT", "0"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
