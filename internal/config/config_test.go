package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8001", cfg.Services.Auth)
	assert.Equal(t, "http://localhost:8000", cfg.Services.Orders)
	assert.Equal(t, "http://localhost:8003", cfg.Services.Chat)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.InitialInterval)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxInterval)
	assert.Equal(t, 2.0, cfg.Reconnect.Multiplier)
	assert.Zero(t, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Poll.ChattersInterval)
	assert.Equal(t, int64(4096), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, "access_token", cfg.Session.Slot)
	assert.Equal(t, "landing:session", cfg.Redis.Prefix)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHAT_SERVICE_HOST", "https://chat.example.com")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("POLL_UNREAD_INTERVAL", "3s")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Services.Chat)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 3*time.Second, cfg.Poll.UnreadInterval)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
}

func TestBadDurationFallsBack(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("poll.chatters_interval", "soon")

	assert.Equal(t, 10*time.Second, parseDuration(v, "poll.chatters_interval", 10*time.Second))
}
