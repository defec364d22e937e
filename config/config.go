// Package config loads service settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPort            = 3000
	DefaultSeedText        = "Welcome! This is your first todo."
	DefaultIdempotencyTTL  = 24 * time.Hour
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds everything main needs to start the service.
type Config struct {
	Port            int
	LogLevel        log.Level
	LogFormat       string
	SeedText        string
	StartID         int64
	RedisURL        string
	IdempotencyTTL  time.Duration
	CORSOrigins     []string
	PprofEnabled    bool
	ShutdownTimeout time.Duration
}

// fileConfig mirrors Config in the TOML file. Durations and the level are
// kept as strings so they go through the same parsing as the environment.
type fileConfig struct {
	Port            *int     `toml:"port"`
	LogLevel        *string  `toml:"log_level"`
	LogFormat       *string  `toml:"log_format"`
	SeedText        *string  `toml:"seed_text"`
	StartID         *int64   `toml:"start_id"`
	RedisURL        *string  `toml:"redis_url"`
	IdempotencyTTL  *string  `toml:"idempotency_ttl"`
	CORSOrigins     []string `toml:"cors_origins"`
	PprofEnabled    *bool    `toml:"pprof_enabled"`
	ShutdownTimeout *string  `toml:"shutdown_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:            DefaultPort,
		LogLevel:        log.InfoLevel,
		LogFormat:       "json",
		SeedText:        DefaultSeedText,
		StartID:         1,
		IdempotencyTTL:  DefaultIdempotencyTTL,
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load reads TODO_CONFIG (if set) and then the environment.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("TODO_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if fc.Port != nil {
		if err := c.setPort(strconv.Itoa(*fc.Port)); err != nil {
			return err
		}
	}
	if fc.LogLevel != nil {
		if err := c.setLogLevel(*fc.LogLevel); err != nil {
			return err
		}
	}
	if fc.LogFormat != nil {
		if err := c.setLogFormat(*fc.LogFormat); err != nil {
			return err
		}
	}
	if fc.SeedText != nil {
		c.SeedText = *fc.SeedText
	}
	if fc.StartID != nil {
		if err := c.setStartID(strconv.FormatInt(*fc.StartID, 10)); err != nil {
			return err
		}
	}
	if fc.RedisURL != nil {
		c.RedisURL = *fc.RedisURL
	}
	if fc.IdempotencyTTL != nil {
		if err := setDuration(&c.IdempotencyTTL, "idempotency_ttl", *fc.IdempotencyTTL); err != nil {
			return err
		}
	}
	if len(fc.CORSOrigins) > 0 {
		c.CORSOrigins = fc.CORSOrigins
	}
	if fc.PprofEnabled != nil {
		c.PprofEnabled = *fc.PprofEnabled
	}
	if fc.ShutdownTimeout != nil {
		if err := setDuration(&c.ShutdownTimeout, "shutdown_timeout", *fc.ShutdownTimeout); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		if err := c.setPort(v); err != nil {
			return err
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		if err := c.setLogLevel(v); err != nil {
			return err
		}
	}
	if v, ok := lookup("DEBUG"); ok {
		if dbg, err := strconv.ParseBool(v); err == nil && dbg {
			c.LogLevel = log.DebugLevel
		}
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		if err := c.setLogFormat(v); err != nil {
			return err
		}
	}
	if v, ok := lookup("SEED_TEXT"); ok {
		c.SeedText = v
	}
	if v, ok := lookup("START_ID"); ok && v != "" {
		if err := c.setStartID(v); err != nil {
			return err
		}
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.RedisURL = v
	}
	if v, ok := lookup("IDEMPOTENCY_TTL"); ok && v != "" {
		if err := setDuration(&c.IdempotencyTTL, "IDEMPOTENCY_TTL", v); err != nil {
			return err
		}
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		origins := make([]string, 0, 4)
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			c.CORSOrigins = origins
		}
	}
	if v, ok := lookup("PPROF_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PPROF_ENABLED: %w", err)
		}
		c.PprofEnabled = b
	}
	if v, ok := lookup("SHUTDOWN_TIMEOUT"); ok && v != "" {
		if err := setDuration(&c.ShutdownTimeout, "SHUTDOWN_TIMEOUT", v); err != nil {
			return err
		}
	}
	return nil
}

// ListenAddr is the address passed to echo.Start.
func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// NewLogger builds the process logger.
func (c Config) NewLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(c.LogLevel)
	if c.LogFormat == "text" {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

func (c *Config) setPort(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if n <= 0 || n > 65535 {
		return fmt.Errorf("invalid PORT: %d out of range", n)
	}
	c.Port = n
	return nil
}

func (c *Config) setLogLevel(v string) error {
	lvl, err := log.ParseLevel(v)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	c.LogLevel = lvl
	return nil
}

func (c *Config) setLogFormat(v string) error {
	switch v = strings.ToLower(v); v {
	case "json", "text":
		c.LogFormat = v
		return nil
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: must be json or text", v)
	}
}

func (c *Config) setStartID(v string) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid START_ID: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("invalid START_ID: must be greater than zero")
	}
	c.StartID = n
	return nil
}

func setDuration(dst *time.Duration, name, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be greater than zero", name)
	}
	*dst = d
	return nil
}
