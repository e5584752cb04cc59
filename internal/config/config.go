package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Reddit     RedditConfig     `mapstructure:"reddit"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Mining     MiningConfig     `mapstructure:"mining"`
	Publishing PublishingConfig `mapstructure:"publishing"`
	Accounts   AccountsConfig   `mapstructure:"accounts"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// RedisConfig holds settings for the OAuth handshake state store
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedditConfig holds Reddit API application settings
type RedditConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	UserAgent    string   `mapstructure:"user_agent"`
	Scopes       []string `mapstructure:"scopes"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// MiningConfig holds opportunity mining settings
type MiningConfig struct {
	BatchLimit          int     `mapstructure:"batch_limit"`           // Max posts per mining pass
	SubredditLimit      int     `mapstructure:"subreddit_limit"`       // Max posts per subreddit
	MaxPostAgeHours     float64 `mapstructure:"max_post_age_hours"`    // Absolute discovery ceiling
	MinRelevanceScore   float64 `mapstructure:"min_relevance_score"`   // Discard below this
	DefaultThreshold    float64 `mapstructure:"default_threshold"`     // Fallback velocity threshold
	ExpirySweepInterval string  `mapstructure:"expiry_sweep_interval"` // Informational, cron drives it
}

// PublishingConfig holds publishing settings
type PublishingConfig struct {
	AutoApprove       bool    `mapstructure:"auto_approve"`
	MinCompositeScore float64 `mapstructure:"min_composite_score"`
	DefaultStyle      string  `mapstructure:"default_style"`
	BrandVoice        string  `mapstructure:"brand_voice"`
}

// AccountsConfig holds per-account rate limiting and health settings
type AccountsConfig struct {
	MaxDailyPosts     int `mapstructure:"max_daily_posts"`
	MinActionInterval int `mapstructure:"min_action_interval_seconds"`
	RecoveryCooldown  int `mapstructure:"recovery_cooldown_minutes"`
}

// MinActionIntervalDuration returns the minimum spacing between actions
func (c AccountsConfig) MinActionIntervalDuration() time.Duration {
	return time.Duration(c.MinActionInterval) * time.Second
}

// RecoveryCooldownDuration returns the rate-limit recovery cooldown
func (c AccountsConfig) RecoveryCooldownDuration() time.Duration {
	return time.Duration(c.RecoveryCooldown) * time.Minute
}

// LearningConfig holds learning feature aggregation settings
type LearningConfig struct {
	MinSamples       int     `mapstructure:"min_samples"`
	SuccessScore     int     `mapstructure:"success_score"`
	DecayRate        float64 `mapstructure:"decay_rate"`
	SnapshotMaxAge   int     `mapstructure:"snapshot_max_age_days"`
	EMASmoothingRate float64 `mapstructure:"ema_smoothing_rate"`
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	MiningCron     string `mapstructure:"mining_cron"`
	ExpiryCron     string `mapstructure:"expiry_cron"`
	PublishCron    string `mapstructure:"publish_cron"`
	HealthCron     string `mapstructure:"health_cron"`
	RecoveryCron   string `mapstructure:"recovery_cron"`
	DailyResetCron string `mapstructure:"daily_reset_cron"`
	AnalyticsCron  string `mapstructure:"analytics_cron"`
	LearningCron   string `mapstructure:"learning_cron"`
	DecayCron      string `mapstructure:"decay_cron"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// TrackerConfig holds Google Sheets tracker settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".reddit-agent"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("REDDIT_AGENT")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("reddit.client_id", "REDDIT_AGENT_REDDIT_CLIENT_ID")
	v.BindEnv("reddit.client_secret", "REDDIT_AGENT_REDDIT_CLIENT_SECRET")
	v.BindEnv("reddit.user_agent", "REDDIT_AGENT_REDDIT_USER_AGENT")
	v.BindEnv("anthropic.api_key", "REDDIT_AGENT_ANTHROPIC_API_KEY")
	v.BindEnv("database.driver", "REDDIT_AGENT_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "REDDIT_AGENT_DATABASE_DSN")
	v.BindEnv("redis.enabled", "REDDIT_AGENT_REDIS_ENABLED")
	v.BindEnv("redis.addr", "REDDIT_AGENT_REDIS_ADDR")
	v.BindEnv("redis.password", "REDDIT_AGENT_REDIS_PASSWORD")
	v.BindEnv("publishing.auto_approve", "REDDIT_AGENT_PUBLISHING_AUTO_APPROVE")
	v.BindEnv("tracker.enabled", "REDDIT_AGENT_TRACKER_ENABLED")
	v.BindEnv("tracker.spreadsheet_id", "REDDIT_AGENT_TRACKER_SPREADSHEET_ID")
	v.BindEnv("tracker.credentials_file", "REDDIT_AGENT_TRACKER_CREDENTIALS_FILE")
	v.BindEnv("tracker.service_account_json", "REDDIT_AGENT_TRACKER_SERVICE_ACCOUNT_JSON")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/reddit-agent.db")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Reddit defaults
	v.SetDefault("reddit.redirect_uri", "http://localhost:8080/callback")
	v.SetDefault("reddit.user_agent", "reddit-agent:v1.0.0")
	v.SetDefault("reddit.scopes", []string{"identity", "read", "submit"})

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.temperature", 0.7)

	// Mining defaults
	v.SetDefault("mining.batch_limit", 100)
	v.SetDefault("mining.subreddit_limit", 50)
	v.SetDefault("mining.max_post_age_hours", 24.0)
	v.SetDefault("mining.min_relevance_score", 0.3)
	v.SetDefault("mining.default_threshold", 15.0)

	// Publishing defaults
	v.SetDefault("publishing.auto_approve", false)
	v.SetDefault("publishing.min_composite_score", 0.5)
	v.SetDefault("publishing.default_style", "helpful_expert")
	v.SetDefault("publishing.brand_voice", "Helpful, specific, and grounded. Answer the question first, mention the product only where it genuinely fits.")

	// Account defaults
	v.SetDefault("accounts.max_daily_posts", 10)
	v.SetDefault("accounts.min_action_interval_seconds", 60)
	v.SetDefault("accounts.recovery_cooldown_minutes", 15)

	// Learning defaults
	v.SetDefault("learning.min_samples", 3)
	v.SetDefault("learning.success_score", 5)
	v.SetDefault("learning.decay_rate", 0.99)
	v.SetDefault("learning.snapshot_max_age_days", 30)
	v.SetDefault("learning.ema_smoothing_rate", 0.1)

	// Scheduler defaults
	v.SetDefault("scheduler.mining_cron", "*/15 * * * *")
	v.SetDefault("scheduler.expiry_cron", "*/10 * * * *")
	v.SetDefault("scheduler.publish_cron", "*/5 * * * *")
	v.SetDefault("scheduler.health_cron", "0 * * * *")
	v.SetDefault("scheduler.recovery_cron", "*/15 * * * *")
	v.SetDefault("scheduler.daily_reset_cron", "0 0 * * *")
	v.SetDefault("scheduler.analytics_cron", "30 * * * *")
	v.SetDefault("scheduler.learning_cron", "0 3 * * *")
	v.SetDefault("scheduler.decay_cron", "0 4 * * 0")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	// Tracker defaults
	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Publishes")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Reddit.ClientID == "" {
		return fmt.Errorf("reddit.client_id is required")
	}
	if c.Reddit.ClientSecret == "" {
		return fmt.Errorf("reddit.client_secret is required")
	}
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	return nil
}
