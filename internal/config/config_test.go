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

	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, uint16(6379), cfg.RedisPort)
	assert.Equal(t, "vehicle_auction_db", cfg.PostgresDb)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, uint16(8085), cfg.HttpServerPort)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("HTTP_SERVER_PORT", "9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal", cfg.RedisHost)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, uint16(9090), cfg.HttpServerPort)
}

func TestLoadConfig_RejectsBadPort(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "80")

	_, err := LoadConfig()
	assert.Error(t, err)
}
