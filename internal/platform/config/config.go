package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parishcare/project/internal/platform/env"
)

// Config is the shared file-based configuration for both services. Every
// field has an environment-variable override so a config file is optional in
// local development.
type Config struct {
	// CareAPIAddr is the HTTP listen address for the care-api service.
	CareAPIAddr string `yaml:"care_api_addr"`

	// StreamerAddr is the HTTP listen address for calendar-streamer.
	StreamerAddr string `yaml:"streamer_addr"`

	DatabaseURL string `yaml:"database_url"`
	NATSURL     string `yaml:"nats_url"`
	JWTSecret   string `yaml:"jwt_secret"`

	// Timezone is the IANA zone used as the congregation's local calendar
	// day (reminder expiry, milestone dates). Empty means the process zone.
	Timezone string `yaml:"timezone"`

	// MilestoneCron is the cron spec for the daily milestone refresh.
	MilestoneCron string `yaml:"milestone_cron"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Default() *Config {
	return &Config{
		CareAPIAddr:     env.DefaultCareAPIAddr,
		StreamerAddr:    env.DefaultStreamerAddr,
		DatabaseURL:     env.DefaultDatabaseURL,
		NATSURL:         env.DefaultNATSURL,
		JWTSecret:       "dev-insecure-change-me",
		Timezone:        "",
		MilestoneCron:   "5 0 * * *",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads the YAML file at path (if it exists) over the defaults, then
// applies environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.CareAPIAddr = env.String("CARE_API_ADDR", cfg.CareAPIAddr)
	cfg.StreamerAddr = env.String("STREAMER_ADDR", cfg.StreamerAddr)
	cfg.DatabaseURL = env.String("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = env.String("NATS_URL", cfg.NATSURL)
	cfg.JWTSecret = env.String("JWT_SECRET", cfg.JWTSecret)
	cfg.Timezone = env.String("TIMEZONE", cfg.Timezone)
	cfg.MilestoneCron = env.String("MILESTONE_CRON", cfg.MilestoneCron)
	cfg.ShutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg, nil
}

// Location resolves the configured timezone, falling back to the process
// local zone when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
