package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName             string        `mapstructure:"app_name"`
	Env                 string        `mapstructure:"app_env"`
	LogLevel            string        `mapstructure:"log_level"`
	ScopesFile          string        `mapstructure:"scopes_file"`
	PublishersFile      string        `mapstructure:"publishers_file"`
	SyncIntervalSeconds int64         `mapstructure:"sync_interval"`
	SyncInterval        time.Duration `mapstructure:"-"`

	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout        time.Duration `mapstructure:"-"`
	RequestRPS         float64       `mapstructure:"request_rps"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	ThrottleMinBudget        int           `mapstructure:"throttle_min_budget"`
	ThrottleMaxBudget        int           `mapstructure:"throttle_max_budget"`
	ThrottleInitialBudget    int           `mapstructure:"throttle_initial_budget"`
	ThrottleSuccessThreshold int           `mapstructure:"throttle_success_threshold"`
	ThrottleShrinkFactor     float64       `mapstructure:"throttle_shrink_factor"`
	ThrottleCooldownSeconds  int64         `mapstructure:"throttle_cooldown_seconds"`
	ThrottleCooldown         time.Duration `mapstructure:"-"`

	ResultsPerPage      int `mapstructure:"results_per_page"`
	DefaultMaxPages     int `mapstructure:"default_max_pages"`
	DefaultMaxCandidate int `mapstructure:"default_max_candidates"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "orthanc-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("scopes_file", "./configs/scopes.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("sync_interval", int64((6 * time.Hour / time.Second))) // seconds

	v.SetDefault("http_timeout_seconds", 15)
	v.SetDefault("request_rps", 0.0) // 0 disables the request-rate bound

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/listings.db")
	v.SetDefault("postgres_dsn", "")

	v.SetDefault("throttle_min_budget", 1)
	v.SetDefault("throttle_max_budget", 8)
	v.SetDefault("throttle_initial_budget", 4)
	v.SetDefault("throttle_success_threshold", 5)
	v.SetDefault("throttle_shrink_factor", 0.5)
	v.SetDefault("throttle_cooldown_seconds", 60)

	v.SetDefault("results_per_page", 25)
	v.SetDefault("default_max_pages", 10)
	v.SetDefault("default_max_candidates", 0) // 0 means unlimited

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.SyncIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid sync_interval (must be positive seconds)")
	}
	cfg.SyncInterval = time.Duration(cfg.SyncIntervalSeconds) * time.Second

	if cfg.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.ThrottleMinBudget < 1 {
		return nil, fmt.Errorf("invalid throttle_min_budget (must be >= 1)")
	}
	if cfg.ThrottleMaxBudget < cfg.ThrottleMinBudget {
		return nil, fmt.Errorf("invalid throttle_max_budget (must be >= throttle_min_budget)")
	}
	if cfg.ThrottleShrinkFactor <= 0 || cfg.ThrottleShrinkFactor >= 1 {
		return nil, fmt.Errorf("invalid throttle_shrink_factor (must be in (0, 1))")
	}
	if cfg.ThrottleSuccessThreshold < 1 {
		return nil, fmt.Errorf("invalid throttle_success_threshold (must be >= 1)")
	}
	if cfg.ThrottleCooldownSeconds < 0 {
		return nil, fmt.Errorf("invalid throttle_cooldown_seconds (must be >= 0)")
	}
	cfg.ThrottleCooldown = time.Duration(cfg.ThrottleCooldownSeconds) * time.Second

	if cfg.ResultsPerPage <= 0 {
		return nil, fmt.Errorf("invalid results_per_page (must be positive)")
	}
	if cfg.DefaultMaxPages <= 0 {
		return nil, fmt.Errorf("invalid default_max_pages (must be positive)")
	}

	return &cfg, nil
}
