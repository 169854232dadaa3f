// Package config loads server settings from an optional .env file and the
// environment using Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Port            int           `mapstructure:"PORT"`
	Host            string        `mapstructure:"HOST"`
	StoreDriver     string        `mapstructure:"STORE_DRIVER"`
	StoreDSN        string        `mapstructure:"STORE_DSN"`
	StoreMaxRetries int           `mapstructure:"STORE_MAX_RETRIES"`
	MigrateOnStart  bool          `mapstructure:"MIGRATE_ON_START"`
	PollInterval    time.Duration `mapstructure:"POLL_INTERVAL"`
	HistoryLimit    int           `mapstructure:"HISTORY_LIMIT"`
	// Comma separated; empty allows same-origin websocket upgrades only.
	AllowedOriginsRaw string `mapstructure:"ALLOWED_ORIGINS"`
	StaticDir         string `mapstructure:"STATIC_DIR"`
	OTLPEndpoint      string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 1234)
	v.SetDefault("HOST", "")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("STORE_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable")
	v.SetDefault("STORE_MAX_RETRIES", 5)
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("POLL_INTERVAL", time.Second)
	v.SetDefault("HISTORY_LIMIT", 100)
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("STATIC_DIR", "./public")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

// Load reads .env (if present) and the environment, then applies args. The
// first positional argument, when given, overrides PORT.
func Load(args []string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if len(args) > 0 && args[0] != "" {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("config: invalid port argument %q", args[0])
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.StoreDSN == "" {
			return errors.New("config: STORE_DSN must be set for " + c.StoreDriver)
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.StoreMaxRetries < 1 {
		return errors.New("config: STORE_MAX_RETRIES must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: POLL_INTERVAL must be positive")
	}
	if c.HistoryLimit < 1 {
		return errors.New("config: HISTORY_LIMIT must be at least 1")
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) AllowedOrigins() []string {
	if c.AllowedOriginsRaw == "" {
		return nil
	}

	parts := strings.Split(c.AllowedOriginsRaw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
