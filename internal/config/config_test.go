package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, []byte("test-secret"), cfg.JWT.Secret)
	assert.Equal(t, 25*time.Second, cfg.Heartbeat.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.PongTimeout)
	assert.Equal(t, time.Second, cfg.Heartbeat.ReconnectInterval)
	assert.Equal(t, 5, cfg.Heartbeat.MaxReconnectAttempts)
	assert.Equal(t, 50, cfg.Heartbeat.HistoryLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PING_INTERVAL", "5s")
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("PORT", ":9000")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Heartbeat.PingInterval)
	assert.Equal(t, 3, cfg.Heartbeat.MaxReconnectAttempts)
}
