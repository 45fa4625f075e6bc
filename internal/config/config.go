package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Telegram struct {
		BotToken    string `yaml:"bot_token"`
		Debug       bool   `yaml:"debug"`
		OrgSlug     string `yaml:"org_slug"` // tenant this bot serves
		AdminChatID int64  `yaml:"admin_chat_id"`
	} `yaml:"telegram"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		DefaultDurationMinutes int `yaml:"default_duration_minutes"`
		SessionTTLMinutes      int `yaml:"session_ttl_minutes"`
		MaxAdvanceDays         int `yaml:"max_advance_days"`
	} `yaml:"booking"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`
}

// Load reads the YAML config at path, expanding ${ENV_VAR} placeholders.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/slotline.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Backup.StoragePath == "" {
		cfg.Backup.StoragePath = "data/backups"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultDuration returns the slot duration used when a caller does not
// specify one.
func (c *Config) DefaultDuration() int {
	if c.Booking.DefaultDurationMinutes <= 0 {
		return 30
	}
	return c.Booking.DefaultDurationMinutes
}

// SessionTTL returns how long an idle conversation survives.
func (c *Config) SessionTTL() time.Duration {
	if c.Booking.SessionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SessionTTLMinutes) * time.Minute
}

// BackupInterval returns how often database snapshots are taken.
func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

// MaxAdvance returns how far ahead bookings may be made.
func (c *Config) MaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 60 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}
