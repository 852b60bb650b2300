package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Presence PresenceConfig `yaml:"presence"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Limits   RateLimit      `yaml:"rate_limit"`
	Chat     ChatConfig     `yaml:"chat"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type PresenceConfig struct {
	OnlineWindow time.Duration `yaml:"online_window"`
	// 0 disables compaction
	CompactAfter time.Duration `yaml:"compact_after"`
}

type RealtimeConfig struct {
	SendBuffer int `yaml:"send_buffer"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ChatConfig struct {
	RequireFriendship bool `yaml:"require_friendship"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:dmchat.db",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Presence: PresenceConfig{
			OnlineWindow: 25 * time.Second,
			CompactAfter: 10 * time.Minute,
		},
		Realtime: RealtimeConfig{SendBuffer: 256},
		Limits:   RateLimit{RPS: 10, Burst: 20},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the effective config: defaults, then the YAML file at path
// (skipped if path is empty or missing), then .env, then CHAT_* variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// A missing .env is fine, real environment variables still apply
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("CHAT_SERVER_ADDRESS", &cfg.Server.Address)
	// PORT is what most hosting platforms set
	if port := os.Getenv("PORT"); port != "" && os.Getenv("CHAT_SERVER_ADDRESS") == "" {
		cfg.Server.Address = ":" + port
	}
	str("CHAT_DATABASE_DRIVER", &cfg.Database.Driver)
	str("CHAT_DATABASE_DSN", &cfg.Database.DSN)
	if url := os.Getenv("DATABASE_URL"); url != "" && os.Getenv("CHAT_DATABASE_DSN") == "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = url
	}
	str("CHAT_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("CHAT_LOG_LEVEL", &cfg.Logging.Level)
	str("CHAT_LOG_FORMAT", &cfg.Logging.Format)

	for key, dst := range map[string]*time.Duration{
		"CHAT_SERVER_READ_TIMEOUT":    &cfg.Server.ReadTimeout,
		"CHAT_SERVER_WRITE_TIMEOUT":   &cfg.Server.WriteTimeout,
		"CHAT_TOKEN_TTL":              &cfg.Auth.TokenTTL,
		"CHAT_PRESENCE_ONLINE_WINDOW": &cfg.Presence.OnlineWindow,
		"CHAT_PRESENCE_COMPACT_AFTER": &cfg.Presence.CompactAfter,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("CHAT_REALTIME_SEND_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CHAT_REALTIME_SEND_BUFFER: %w", err)
		}
		cfg.Realtime.SendBuffer = n
	}
	if v := os.Getenv("CHAT_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAT_RATE_LIMIT_RPS: %w", err)
		}
		cfg.Limits.RPS = f
	}
	if v := os.Getenv("CHAT_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CHAT_RATE_LIMIT_BURST: %w", err)
		}
		cfg.Limits.Burst = n
	}
	if v := os.Getenv("CHAT_REQUIRE_FRIENDSHIP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CHAT_REQUIRE_FRIENDSHIP: %w", err)
		}
		cfg.Chat.RequireFriendship = b
	}
	return nil
}

// Validate checks the settings the server cannot start without
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite", "postgres", "postgresql":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Server.Address == "" {
		problems = append(problems, "server.address is required")
	}
	if c.Presence.OnlineWindow <= 0 {
		problems = append(problems, "presence.online_window must be positive")
	}
	if c.Realtime.SendBuffer <= 0 {
		problems = append(problems, "realtime.send_buffer must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
