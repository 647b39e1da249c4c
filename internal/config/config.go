package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DownloadsConfig struct {
	StorageDir     string        `yaml:"storage_dir"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	Timeout        time.Duration `yaml:"timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`   // scheduler tick
	ErrorBackoff   time.Duration `yaml:"error_backoff"`   // scheduler sleep after a tick error
	ProgressWrite  time.Duration `yaml:"progress_write"`  // min gap between progress writes to the store
	ObserverPoll   time.Duration `yaml:"observer_poll"`   // per-job observer tick
	NotifyInterval time.Duration `yaml:"notify_interval"` // min gap between unchanged-state notifier emissions
	InlineLimitMB  int64         `yaml:"inline_limit_mb"` // artifacts above this go out as links
	ProbeCacheTTL  time.Duration `yaml:"probe_cache_ttl"`
	CleanupMaxAge  time.Duration `yaml:"cleanup_max_age"`
	CleanupEvery   time.Duration `yaml:"cleanup_every"`
}

type FileServerConfig struct {
	Port    int           `yaml:"port"`
	BaseURL string        `yaml:"base_url"` // external prefix for published links
	LinkTTL time.Duration `yaml:"link_ttl"`
}

type PriorityConfig struct {
	Days     int     `yaml:"days"` // granted on purchase confirmation
	PriceUSD float64 `yaml:"price_usd"`
}

type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Downloads  DownloadsConfig  `yaml:"downloads"`
	FileServer FileServerConfig `yaml:"file_server"`
	Priority   PriorityConfig   `yaml:"priority"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	applyDownloadDefaults(&cfg.Downloads)
	if cfg.FileServer.Port == 0 {
		cfg.FileServer.Port = 8099
	}
	if cfg.FileServer.LinkTTL <= 0 {
		cfg.FileServer.LinkTTL = time.Hour
	}
	if cfg.FileServer.BaseURL == "" {
		cfg.FileServer.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.FileServer.Port)
	}
	if cfg.Priority.Days <= 0 {
		cfg.Priority.Days = 30
	}
	if cfg.Priority.PriceUSD <= 0 {
		cfg.Priority.PriceUSD = 5
	}

	// Minimal validation. Dev runs may leave the token empty and get the
	// noop notifier instead of Telegram.
	if cfg.Bot.Token == "" && !dev {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDownloadDefaults(d *DownloadsConfig) {
	if d.StorageDir == "" {
		d.StorageDir = "storage"
	}
	if d.MaxConcurrent <= 0 {
		d.MaxConcurrent = 3
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Minute
	}
	if d.PollInterval <= 0 {
		d.PollInterval = 2 * time.Second
	}
	if d.ErrorBackoff <= 0 {
		d.ErrorBackoff = 5 * time.Second
	}
	if d.ProgressWrite <= 0 {
		d.ProgressWrite = 2 * time.Second
	}
	if d.ObserverPoll <= 0 {
		d.ObserverPoll = 500 * time.Millisecond
	}
	if d.NotifyInterval <= 0 {
		d.NotifyInterval = 3 * time.Second
	}
	if d.InlineLimitMB <= 0 {
		d.InlineLimitMB = 50
	}
	if d.ProbeCacheTTL <= 0 {
		d.ProbeCacheTTL = 10 * time.Minute
	}
	if d.CleanupMaxAge <= 0 {
		d.CleanupMaxAge = 72 * time.Hour
	}
	if d.CleanupEvery <= 0 {
		d.CleanupEvery = time.Hour
	}
}

// InlineLimitBytes is the inline/link delivery threshold in bytes.
func (d DownloadsConfig) InlineLimitBytes() int64 {
	return d.InlineLimitMB * 1024 * 1024
}
