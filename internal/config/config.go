package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupConfig controls periodic database snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Session struct {
		Backend        string `yaml:"backend"` // sqlite | redis | memory
		TimeoutMinutes int    `yaml:"timeout_minutes"`
		HistoryLength  int    `yaml:"history_length"`
	} `yaml:"session"`

	NLU struct {
		Provider       string `yaml:"provider"` // gemini | keyword
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"nlu"`

	Store struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"store"`

	Catalog struct {
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"catalog"`

	RateLimit struct {
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Reminders struct {
		Enabled bool `yaml:"enabled"`
		Hour    int  `yaml:"hour"`
	} `yaml:"reminders"`

	Export struct {
		Days int `yaml:"days"`
	} `yaml:"export"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	SalonConfigPath string  `yaml:"salon_config_path"`
	Timezone        string  `yaml:"timezone"`
	Managers        []int64 `yaml:"managers"`
}

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
	cfg.applyDefaults()

	if _, err = cfg.Location(); err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/salonbot.db"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "sqlite"
	}
	if c.Session.TimeoutMinutes <= 0 {
		c.Session.TimeoutMinutes = 10
	}
	if c.Session.HistoryLength <= 0 {
		c.Session.HistoryLength = 10
	}
	if c.NLU.Provider == "" {
		c.NLU.Provider = "keyword"
	}
	if c.NLU.Model == "" {
		c.NLU.Model = "gemini-1.5-flash"
	}
	if c.SalonConfigPath == "" {
		c.SalonConfigPath = "configs/salon.yaml"
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 1
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.Reminders.Hour <= 0 || c.Reminders.Hour > 23 {
		c.Reminders.Hour = 9
	}
	if c.Export.Days <= 0 {
		c.Export.Days = 30
	}
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

func (c *Config) NLUTimeout() time.Duration {
	if c.NLU.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.NLU.TimeoutSeconds) * time.Second
}

func (c *Config) StoreTimeout() time.Duration {
	if c.Store.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

func (c *Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.Catalog.CacheTTLSeconds) * time.Second
}

// Interval is the time between snapshots, 24h when unset.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

// Location resolves the configured timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// IsManager reports whether userID is listed as a manager.
func (c *Config) IsManager(userID int64) bool {
	for _, id := range c.Managers {
		if id == userID {
			return true
		}
	}
	return false
}
