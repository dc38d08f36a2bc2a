package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Realtime RealtimeConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port             string        `env:"PORT" envDefault:":8080"`
	ReadTimeout      time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig points at the application's Postgres database. An empty URL
// disables user lookups and the durable message archive.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

type RedisConfig struct {
	URL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Prefix string `env:"REDIS_PREFIX" envDefault:"meetup:"`
}

type JWTConfig struct {
	Secret string `env:"JWT_SECRET,required,notEmpty"`
	Issuer string `env:"JWT_ISSUER"`
}

type RealtimeConfig struct {
	HistoryLimit     int           `env:"HISTORY_LIMIT" envDefault:"50"`
	PresenceTTL      time.Duration `env:"PRESENCE_TTL" envDefault:"5m"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`
	SendBuffer       int           `env:"SEND_BUFFER" envDefault:"256"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH" envDefault:"4000"`
	PersistQueue     int           `env:"PERSIST_QUEUE" envDefault:"1024"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Realtime.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.Realtime.HistoryLimit)
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.Realtime.SendBuffer)
	}
	if c.Realtime.PersistQueue <= 0 {
		return fmt.Errorf("PERSIST_QUEUE must be positive, got %d", c.Realtime.PersistQueue)
	}
	if c.Realtime.PresenceTTL < time.Second {
		return fmt.Errorf("PRESENCE_TTL must be at least 1s, got %s", c.Realtime.PresenceTTL)
	}
	return nil
}
