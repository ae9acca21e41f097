package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	// Client Configuration
	Client ClientConfig
	Logger LoggerConfig

	// Relay Configuration
	Relay RelayConfig
	Redis RedisConfig

	// Authentication Configuration
	JWT JWTConfig
}

// ClientConfig is the configuration for the realtime client
type ClientConfig struct {
	ServerURL   string        `env:"RT_SERVER_URL" envDefault:"ws://localhost:8081/ws"`
	DialTimeout time.Duration `env:"RT_DIAL_TIMEOUT" envDefault:"10s"`

	// Reconnection backoff bounds
	InitialBackoff time.Duration `env:"RT_INITIAL_BACKOFF" envDefault:"500ms"`
	MaxBackoff     time.Duration `env:"RT_MAX_BACKOFF" envDefault:"30s"`

	// Keepalive
	PingInterval time.Duration `env:"RT_PING_INTERVAL" envDefault:"30s"`
	PongWait     time.Duration `env:"RT_PONG_WAIT" envDefault:"60s"`
	WriteWait    time.Duration `env:"RT_WRITE_WAIT" envDefault:"10s"`

	// Outbound queue: emits are fire-and-forget, so a full queue drops
	SendQueueSize  int   `env:"RT_SEND_QUEUE_SIZE" envDefault:"256"`
	MaxMessageSize int64 `env:"RT_MAX_MESSAGE_SIZE" envDefault:"65536"`

	// Typing indicator windows
	TypingThrottle time.Duration `env:"RT_TYPING_THROTTLE" envDefault:"2s"`
	TypingExpiry   time.Duration `env:"RT_TYPING_EXPIRY" envDefault:"4s"`

	// Durable persistence API
	APIBaseURL string `env:"RT_API_BASE_URL" envDefault:"http://localhost:8080/api"`
}

// RelayConfig is the configuration for the development relay server
type RelayConfig struct {
	Host string `env:"RELAY_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"RELAY_PORT" envDefault:"8081"`
	Mode string `env:"RELAY_MODE" envDefault:"release"`

	PingInterval    time.Duration `env:"RELAY_PING_INTERVAL" envDefault:"30s"`
	PongWait        time.Duration `env:"RELAY_PONG_WAIT" envDefault:"60s"`
	WriteWait       time.Duration `env:"RELAY_WRITE_WAIT" envDefault:"10s"`
	MaxMessageSize  int64         `env:"RELAY_MAX_MESSAGE_SIZE" envDefault:"65536"`
	ReadBufferSize  int           `env:"RELAY_READ_BUFFER_SIZE" envDefault:"1024"`
	WriteBufferSize int           `env:"RELAY_WRITE_BUFFER_SIZE" envDefault:"1024"`
	MaxConnections  int           `env:"RELAY_MAX_CONNECTIONS" envDefault:"10000"`
}

// RedisConfig is the configuration for the optional relay Redis bridge.
// The bridge is disabled when Host is empty.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	UseTLS   bool   `env:"REDIS_USE_TLS" envDefault:"false"`
}

// JWTConfig is the configuration for the JWT
type JWTConfig struct {
	SecretKey string `env:"JWT_SECRET_KEY"`
	Issuer    string `env:"JWT_ISSUER" envDefault:"eduhub"`
}

// LoggerConfig is the configuration for the logger
type LoggerConfig struct {
	Level        string `env:"LOGGER_LEVEL" envDefault:"info"`
	Mode         string `env:"LOGGER_MODE" envDefault:"production"`
	Encoding     string `env:"LOGGER_ENCODING" envDefault:"json"`
	ColorEnabled bool   `env:"LOGGER_COLOR_ENABLED" envDefault:"false"`
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	return cfg, nil
}
