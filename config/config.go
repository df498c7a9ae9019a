// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	TOTP      TOTPConfig      `yaml:"totp"`
	Admin     AdminConfig     `yaml:"admin"`
	Sweep     SweepConfig     `yaml:"sweep"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StoreConfig struct {
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	// ExpiryGrace is how long a record outlives its ttl inside Redis.
	ExpiryGrace time.Duration `yaml:"expiry_grace"`
}

type CryptoConfig struct {
	Secret string `yaml:"secret"`
}

type TOTPConfig struct {
	Issuer string `yaml:"issuer"`
}

type AdminConfig struct {
	// Token guards the admin routes. Empty disables them.
	Token string `yaml:"token"`
}

type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	RevealPerMin   int  `yaml:"reveal_per_min"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxAge         int      `yaml:"max_age"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:        "localhost:6379",
				Password:    "",
				DB:          0,
				KeyPrefix:   "vault:",
				ExpiryGrace: 24 * time.Hour,
			},
		},
		TOTP: TOTPConfig{
			Issuer: "secure.vault",
		},
		Sweep: SweepConfig{
			Interval: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 100,
			RevealPerMin:   20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			MaxAge:         86400,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.RequestTimeout = d
		}
	}

	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = db
		}
	}
	if v := os.Getenv("REDIS_KEY_PREFIX"); v != "" {
		c.Store.Redis.KeyPrefix = v
	}
	if v := os.Getenv("REDIS_EXPIRY_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Store.Redis.ExpiryGrace = d
		}
	}

	if v := os.Getenv("ENCRYPTION_SECRET"); v != "" {
		c.Crypto.Secret = v
	}
	if v := os.Getenv("TOTP_ISSUER"); v != "" {
		c.TOTP.Issuer = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sweep.Interval = d
		}
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerMin = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_REVEAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RevealPerMin = n
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.Store.Type != "memory" && c.Store.Type != "redis" {
		return fmt.Errorf("invalid store type: %s (must be 'memory' or 'redis')", c.Store.Type)
	}

	if c.Store.Type == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when store type is 'redis'")
	}

	if c.Store.Redis.ExpiryGrace < 0 {
		return fmt.Errorf("redis expiry_grace must not be negative")
	}

	if c.Crypto.Secret == "" {
		return fmt.Errorf("crypto secret is required (set ENCRYPTION_SECRET)")
	}

	if c.Sweep.Interval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMin < 1 || c.RateLimit.RevealPerMin < 1) {
		return fmt.Errorf("rate limits must be at least 1 request per minute")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'text')", c.Log.Format)
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
