package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type OAuthProvider struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

type Config struct {
	Server struct {
		Port            string   `yaml:"port"`
		FrontendURL     string   `yaml:"frontend_url"`
		AllowedOrigins  []string `yaml:"allowed_origins"`
		SecureCookies   bool     `yaml:"secure_cookies"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Auth struct {
		JWTSecret   string `yaml:"jwt_secret"`
		TokenTTL    string `yaml:"token_ttl"`
		ExchangeTTL string `yaml:"exchange_ttl"`
	} `yaml:"auth"`
	OAuth struct {
		Google   OAuthProvider `yaml:"google"`
		Facebook OAuthProvider `yaml:"facebook"`
	} `yaml:"oauth"`
	Generator struct {
		APIKey     string `yaml:"api_key"`
		BaseURL    string `yaml:"base_url"`
		Model      string `yaml:"model"`
		Timeout    string `yaml:"timeout"`
		Retries    uint64 `yaml:"retries"`
		RateLimit  int    `yaml:"rate_limit"`
		RateWindow string `yaml:"rate_window"`
	} `yaml:"generator"`
	Session struct {
		PinAttempts int `yaml:"pin_attempts"`
	} `yaml:"session"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file is not an error: defaults and the environment
// are enough to run locally.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv overlays deployment values and secrets from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Auth.JWTSecret, "JWT_SECRET")
	set(&c.Server.FrontendURL, "FRONTEND_URL")
	set(&c.Generator.APIKey, "GROQ_API_KEY")
	set(&c.Postgres.URL, "DATABASE_URL")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Storage.Driver, "STORAGE_DRIVER")
	set(&c.SQLite.Path, "SQLITE_PATH")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.OAuth.Google.ClientID, "GOOGLE_CLIENT_ID")
	set(&c.OAuth.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	set(&c.OAuth.Google.CallbackURL, "GOOGLE_CALLBACK_URL")
	set(&c.OAuth.Facebook.ClientID, "FACEBOOK_CLIENT_ID")
	set(&c.OAuth.Facebook.ClientSecret, "FACEBOOK_CLIENT_SECRET")
	set(&c.OAuth.Facebook.CallbackURL, "FACEBOOK_CALLBACK_URL")
	if v, ok := lookup("REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		if c.Postgres.URL != "" {
			c.Storage.Driver = DriverPostgres
		} else {
			c.Storage.Driver = DriverMemory
		}
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.SQLite.Path == "" {
		c.SQLite.Path = "samarpan.db"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres url not configured")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret not configured (auth.jwt_secret or JWT_SECRET)")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
