// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the phrase hat service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultHost              = "127.0.0.1"
	defaultPort              = 9000
	defaultMaxBodyBytes      = 16 * 1024
	defaultKeepAliveInterval = 15 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultRateLimitBurst    = 20
	defaultRefillInterval    = time.Second
)

// RateLimitConfig defines the token bucket applied per client to phrase
// recording, over HTTP and over WebSocket messages. It is off unless Enabled
// is set; a limited request gets 429 instead of the acknowledgement.
type RateLimitConfig struct {
	Enabled        bool          `env:"ENABLED"`
	Burst          int           `env:"BURST"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
}

// Config holds the server configuration settings.
type Config struct {
	Host string `env:"HOST"`
	Port int    `env:"PORT"`

	// MaxBodyBytes bounds recording request bodies and inbound WebSocket messages.
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES"`
	// StreamBufferSize caps each client's pending snapshot queue; 0 is unbounded.
	StreamBufferSize  int           `env:"STREAM_BUFFER_SIZE"`
	KeepAliveInterval time.Duration `env:"KEEP_ALIVE_INTERVAL"`
	// EagerReap removes a client from the registry as soon as its connection
	// ends instead of waiting for the next failed broadcast.
	EagerReap bool `env:"EAGER_REAP"`

	AllowedOrigins []string        `env:"ALLOWED_ORIGINS" envSeparator:","`
	RateLimit      RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `env:"LOG_LEVEL"`
	LogFormat       string        `env:"LOG_FORMAT"`
}

func defaultConfig() Config {
	return Config{
		Host:              defaultHost,
		Port:              defaultPort,
		MaxBodyBytes:      defaultMaxBodyBytes,
		StreamBufferSize:  0,
		KeepAliveInterval: defaultKeepAliveInterval,
		AllowedOrigins: []string{
			"http://127.0.0.1:9000",
			"http://localhost:9000",
		},
		RateLimit: RateLimitConfig{
			Burst:          defaultRateLimitBurst,
			RefillInterval: defaultRefillInterval,
		},
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.StreamBufferSize < 0 {
		cfg.StreamBufferSize = 0
	}

	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateLimitBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, after loading
// an optional .env file. Unset variables keep their default values and
// out-of-range values fall back to defaults.
func NewConfigFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
