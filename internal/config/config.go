package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the engine and its CLI.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Events   EventsConfig
	Engine   EngineConfig
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Name string
	Env  string // development, production, test
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// EventsConfig controls where committed-change events are published.
// An empty RedisURL keeps events in-process.
type EventsConfig struct {
	RedisURL string
	Channel  string
	Buffer   int
}

// EngineConfig holds engine behaviour settings.
type EngineConfig struct {
	// DefaultActor is recorded as app.current_user when a caller passes no actor.
	DefaultActor string
}

// Load reads configuration.
// Priority (highest to lowest):
//  1. Environment variables with FARM_ prefix (e.g., FARM_DATABASE_URL); DATABASE_URL is an alias
//  2. .env file in the working directory
//  3. config.toml in . or ./config
//  4. Built-in defaults
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("FARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "FARM_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind database url: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			MaxConnLifetime: v.GetDuration("database.max_conn_lifetime"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Events: EventsConfig{
			RedisURL: v.GetString("events.redis_url"),
			Channel:  v.GetString("events.channel"),
			Buffer:   v.GetInt("events.buffer"),
		},
		Engine: EngineConfig{
			DefaultActor: v.GetString("engine.default_actor"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "farm-ledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MaxConnLifetime == 0 {
		cfg.Database.MaxConnLifetime = 30 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Events.Channel == "" {
		cfg.Events.Channel = "farm-ledger:changes"
	}
	if cfg.Events.Buffer == 0 {
		cfg.Events.Buffer = 64
	}
	if cfg.Engine.DefaultActor == "" {
		cfg.Engine.DefaultActor = "system"
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (set FARM_DATABASE_URL or DATABASE_URL)")
	}
	if c.Database.MinConns < 0 || c.Database.MaxConns < 1 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("invalid pool size: min %d, max %d", c.Database.MinConns, c.Database.MaxConns)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (want json or console)", c.Log.Format)
	}
	if c.Events.Buffer < 0 {
		return fmt.Errorf("events buffer cannot be negative, got %d", c.Events.Buffer)
	}
	return nil
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
