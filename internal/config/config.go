// Package config loads service settings from an optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxPageSize is the largest page the order stores serve (store.MaxPageSize).
const MaxPageSize = 500

type Config struct {
	Carrier Carrier `yaml:"carrier"`
	Sync    Sync    `yaml:"sync"`
	Store   Store   `yaml:"store"`
	Redis   Redis   `yaml:"redis"`
	HTTP    HTTP    `yaml:"http"`
	Rates   Rates   `yaml:"rates"`
}

type Carrier struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSec    float64       `yaml:"rate_per_sec"`
	Burst         int           `yaml:"burst"`
	BusinessID    string        `yaml:"business_id"`
	SenderAgentID string        `yaml:"sender_agent_id"`
	Verbose       bool          `yaml:"verbose"`
}

type Sync struct {
	Interval        time.Duration `yaml:"interval"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	PageSize        int           `yaml:"page_size"`
	FirstRunDelay   time.Duration `yaml:"first_run_delay"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
	StallAfter      time.Duration `yaml:"stall_after"`
	AllowRegression bool          `yaml:"allow_regression"`
	DestinationsTTL time.Duration `yaml:"destinations_ttl"`
}

type Store struct {
	DatabaseURL string `yaml:"database_url"`
	Migrate     bool   `yaml:"migrate"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type HTTP struct {
	Addr       string `yaml:"addr"`
	AdminToken string `yaml:"admin_token"`
}

type Rates struct {
	Enabled  bool          `yaml:"enabled"`
	Title    string        `yaml:"title"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Carrier: Carrier{Timeout: 20 * time.Second, RatePerSec: 5, Burst: 5},
		Sync: Sync{
			Interval:        time.Hour,
			LockTTL:         50 * time.Minute,
			PageSize:        25,
			FirstRunDelay:   time.Minute,
			StallAfter:      72 * time.Hour,
			DestinationsTTL: 6 * time.Hour,
		},
		Store: Store{Migrate: true},
		HTTP:  HTTP{Addr: ":8080"},
		Rates: Rates{Enabled: true, Title: "Pickup Mtaani", CacheTTL: 10 * time.Minute},
	}
}

// Load reads the YAML file named by PM_CONFIG (if any) over the defaults and
// then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("PM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document does not set.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Carrier.APIKey, "PM_API_KEY")
	setString(&cfg.Carrier.BaseURL, "PM_BASE_URL")
	setString(&cfg.Carrier.BusinessID, "PM_BUSINESS_ID")
	setString(&cfg.Carrier.SenderAgentID, "PM_SENDER_AGENT_ID")
	setBool(&cfg.Carrier.Verbose, "PM_VERBOSE")
	setDuration(&cfg.Carrier.Timeout, "PM_TIMEOUT")
	setDuration(&cfg.Sync.Interval, "PM_SYNC_INTERVAL")
	setDuration(&cfg.Sync.LockTTL, "PM_LOCK_TTL")
	setDuration(&cfg.Sync.RunTimeout, "PM_RUN_TIMEOUT")
	setInt(&cfg.Sync.PageSize, "PM_PAGE_SIZE")
	setBool(&cfg.Sync.AllowRegression, "PM_ALLOW_REGRESSION")
	setString(&cfg.Store.DatabaseURL, "DATABASE_URL")
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		cfg.Store.Migrate = v != "false"
	}
	setString(&cfg.Redis.URL, "REDIS_URL")
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	setString(&cfg.HTTP.AdminToken, "PM_ADMIN_TOKEN")
}

func (c *Config) normalize() {
	c.Carrier.APIKey = strings.TrimSpace(c.Carrier.APIKey)
	c.Carrier.BaseURL = strings.TrimRight(strings.TrimSpace(c.Carrier.BaseURL), "/")
	c.Store.DatabaseURL = strings.TrimSpace(c.Store.DatabaseURL)
}

// Validate rejects schedules that could never run cleanly.
func (c Config) Validate() error {
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be > 0")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > MaxPageSize {
		return fmt.Errorf("sync.page_size must be in 1..%d", MaxPageSize)
	}
	if c.Sync.LockTTL <= 0 || c.Sync.LockTTL >= c.Sync.Interval {
		return fmt.Errorf("sync.lock_ttl must be in (0, interval)")
	}
	if c.Sync.RunTimeout < 0 || c.Sync.RunTimeout > c.Sync.LockTTL {
		return fmt.Errorf("sync.run_timeout must be in [0, lock_ttl]")
	}
	if c.Carrier.Timeout <= 0 {
		return fmt.Errorf("carrier.timeout must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
