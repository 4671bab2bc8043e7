package config

import (
	"time"

	pkgconfig "github.com/AleksandrVishniakov/versta-2024/pkg/config"
	"github.com/spf13/viper"
)

type Config struct {
	Services  ServicesConfig
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	Reconnect ReconnectConfig
	Poll      PollConfig
	Session   SessionConfig
	Redis     RedisConfig
	Log       LogConfig
}

// ServicesConfig holds the base URLs of the remote servers.
type ServicesConfig struct {
	Auth   string
	Orders string
	Chat   string
}

type HTTPConfig struct {
	Timeout time.Duration
}

type WebSocketConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

// ReconnectConfig bounds the chat channel reconnect loop.
// MaxAttempts 0 means retry until Disconnect.
type ReconnectConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64
	MaxAttempts     int `mapstructure:"max_attempts"`
}

type PollConfig struct {
	ChattersInterval time.Duration `mapstructure:"chatters_interval"`
	UnreadInterval   time.Duration `mapstructure:"unread_interval"`
}

// SessionConfig selects the credential store backend.
type SessionConfig struct {
	Backend string // memory, redis
	Slot    string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	// Override from environment
	v.BindEnv("services.auth", "AUTH_SERVICE_HOST")
	v.BindEnv("services.orders", "ORDERS_SERVICE_HOST")
	v.BindEnv("services.chat", "CHAT_SERVICE_HOST")
	v.BindEnv("session.backend", "SESSION_BACKEND")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("services.auth", "http://localhost:8001")
	v.SetDefault("services.orders", "http://localhost:8000")
	v.SetDefault("services.chat", "http://localhost:8003")
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("reconnect.initial_interval", "500ms")
	v.SetDefault("reconnect.max_interval", "30s")
	v.SetDefault("reconnect.multiplier", 2.0)
	v.SetDefault("reconnect.max_attempts", 0)
	v.SetDefault("poll.chatters_interval", "10s")
	v.SetDefault("poll.unread_interval", "10s")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.slot", "access_token")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "landing:session")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.HTTP.Timeout = parseDuration(v, "http.timeout", 10*time.Second)
	cfg.WebSocket.HandshakeTimeout = parseDuration(v, "websocket.handshake_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Reconnect.InitialInterval = parseDuration(v, "reconnect.initial_interval", 500*time.Millisecond)
	cfg.Reconnect.MaxInterval = parseDuration(v, "reconnect.max_interval", 30*time.Second)
	cfg.Poll.ChattersInterval = parseDuration(v, "poll.chatters_interval", 10*time.Second)
	cfg.Poll.UnreadInterval = parseDuration(v, "poll.unread_interval", 10*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
