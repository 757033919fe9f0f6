// Package config loads runtime configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Env      string `env:"ENV"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	API     APIConfig
	Store   StoreConfig
	Booking BookingConfig
	Dev     DevServerConfig
}

type APIConfig struct {
	BaseURL     string        `env:"API_BASE_URL,     default=http://localhost:8000/api"`
	Timeout     time.Duration `env:"HTTP_TIMEOUT,     default=30s"`
	RefreshPath string        `env:"REFRESH_PATH,     default=/auth/token/refresh/"`
	RateLimit   float64       `env:"RATE_LIMIT_RPS,   default=0"`
	RateBurst   int           `env:"RATE_LIMIT_BURST, default=5"`
}

type StoreConfig struct {
	Backend     string `env:"STORE_BACKEND, default=memory"`
	RedisAddr   string `env:"REDIS_ADDR,    default=localhost:6379"`
	RedisDB     int    `env:"REDIS_DB,      default=0"`
	RedisPrefix string `env:"REDIS_PREFIX,  default=shopbook:"`
}

type BookingConfig struct {
	AutoRetries int `env:"BOOKING_AUTO_RETRIES, default=1"`
}

type DevServerConfig struct {
	Addr      string        `env:"DEVSERVER_ADDR,       default=:8000"`
	JWTSecret string        `env:"DEVSERVER_JWT_SECRET, default=dev-secret-change-in-production"`
	TokenTTL  time.Duration `env:"DEVSERVER_TOKEN_TTL,  default=5m"`
}

// IsDev reports ENV=dev
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// Load reads an optional .env file and then the process environment.
// Values already set in the environment win over the file.
func Load(ctx context.Context, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env (%s): %w", f, err)
		}
	}
	return Process(ctx, envconfig.OsLookuper())
}

// Process fills a Config from lookuper
func Process(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	switch cfg.Store.Backend {
	case StoreMemory, StoreRedis:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
	return &cfg, nil
}

// SetupLogging configures the global zerolog logger for service
func SetupLogging(cfg *Config, service string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.With().Str("service", service).Logger()

	// Pretty logging for local dev (only when explicitly set to "dev")
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			With().Str("service", service).Logger()
	}
}
