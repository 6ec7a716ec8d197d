package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Amazon   AmazonConfig
	Sync     SyncConfig
	Tracking TrackingConfig
	Notify   NotifyConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AmazonConfig holds selling-partner API credentials and endpoints
type AmazonConfig struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	MarketplaceID string
	APIBaseURL    string
	TokenURL      string
	IsSandbox     bool
	TimeoutSecs   int
	PageSize      int
}

// SyncConfig holds the sync cycle configuration
type SyncConfig struct {
	Enabled bool
	// Interval between cycle triggers
	Interval time.Duration
	// Lookback window for the first cycle, before a high-water mark exists
	Lookback time.Duration
	// MinAPIInterval is the minimum spacing between outbound marketplace calls
	MinAPIInterval time.Duration
}

// TrackingConfig holds tracking queue and carrier API configuration
type TrackingConfig struct {
	MaxRetries        int
	MinUpdateInterval time.Duration
	TaskDelay         time.Duration
	IdleDelay         time.Duration
	CarrierEndpoint   string
	CarrierAPIKey     string
	TimeoutSecs       int
}

// NotifyConfig holds cycle report delivery configuration
type NotifyConfig struct {
	// WebhookURL receives cycle summaries as JSON; empty falls back to logging
	WebhookURL  string
	TimeoutSecs int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SELLERPULSE_ prefix (e.g., SELLERPULSE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("SELLERPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Amazon: AmazonConfig{
			ClientID:      v.GetString("amazon.client_id"),
			ClientSecret:  v.GetString("amazon.client_secret"),
			RefreshToken:  v.GetString("amazon.refresh_token"),
			MarketplaceID: v.GetString("amazon.marketplace_id"),
			APIBaseURL:    v.GetString("amazon.api_base_url"),
			TokenURL:      v.GetString("amazon.token_url"),
			IsSandbox:     v.GetBool("amazon.sandbox"),
			TimeoutSecs:   v.GetInt("amazon.timeout_seconds"),
			PageSize:      v.GetInt("amazon.page_size"),
		},
		Sync: SyncConfig{
			Enabled:        v.GetBool("sync.enabled"),
			Interval:       v.GetDuration("sync.interval"),
			Lookback:       v.GetDuration("sync.lookback"),
			MinAPIInterval: v.GetDuration("sync.min_api_interval"),
		},
		Tracking: TrackingConfig{
			MaxRetries:        v.GetInt("tracking.max_retries"),
			MinUpdateInterval: v.GetDuration("tracking.min_update_interval"),
			TaskDelay:         v.GetDuration("tracking.task_delay"),
			IdleDelay:         v.GetDuration("tracking.idle_delay"),
			CarrierEndpoint:   v.GetString("tracking.carrier_endpoint"),
			CarrierAPIKey:     v.GetString("tracking.carrier_api_key"),
			TimeoutSecs:       v.GetInt("tracking.timeout_seconds"),
		},
		Notify: NotifyConfig{
			WebhookURL:  v.GetString("notify.webhook_url"),
			TimeoutSecs: v.GetInt("notify.timeout_seconds"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills in defaults for unset values
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sellerpulse-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "sellerpulse"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = 15 * time.Minute
	}
	if cfg.Sync.Lookback == 0 {
		cfg.Sync.Lookback = 30 * 24 * time.Hour
	}
	if cfg.Sync.MinAPIInterval == 0 {
		cfg.Sync.MinAPIInterval = time.Second
	}
	if cfg.Tracking.MaxRetries == 0 {
		cfg.Tracking.MaxRetries = 3
	}
	if cfg.Tracking.MinUpdateInterval == 0 {
		cfg.Tracking.MinUpdateInterval = 12 * time.Hour
	}
	if cfg.Tracking.TaskDelay == 0 {
		cfg.Tracking.TaskDelay = time.Second
	}
	if cfg.Tracking.IdleDelay == 0 {
		cfg.Tracking.IdleDelay = 5 * time.Second
	}
	if cfg.Tracking.TimeoutSecs == 0 {
		cfg.Tracking.TimeoutSecs = 15
	}
	if cfg.Notify.TimeoutSecs == 0 {
		cfg.Notify.TimeoutSecs = 10
	}
}

// validate checks configuration consistency
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync.interval must be at least one minute, got %s", c.Sync.Interval)
	}
	if c.Sync.MinAPIInterval <= 0 {
		return fmt.Errorf("sync.min_api_interval must be positive")
	}
	if c.Tracking.MaxRetries < 1 {
		return fmt.Errorf("tracking.max_retries must be at least 1")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Amazon.RefreshToken == "" {
			return fmt.Errorf("amazon.refresh_token is required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
