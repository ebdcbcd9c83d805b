package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/quotejump/internal/models"
	"github.com/rewired-gh/quotejump/internal/monitor"
)

// Config represents the complete application configuration
type Config struct {
	Feed     FeedConfig     `mapstructure:"feed"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Status   StatusConfig   `mapstructure:"status"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// FeedConfig holds live-match API configuration
type FeedConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIHost           string        `mapstructure:"api_host"`
	APIKey            string        `mapstructure:"api_key"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	MaxOddsCalls      int           `mapstructure:"max_odds_calls"`
	LeagueKeywords    []string      `mapstructure:"league_keywords"` // empty = all leagues
	LeagueExclude     []string      `mapstructure:"league_exclude"`
}

// MonitorConfig holds detection thresholds and strategies
type MonitorConfig struct {
	ConfirmPolls     int              `mapstructure:"confirm_polls"`
	SettleDelay      time.Duration    `mapstructure:"settle_delay"`
	SampleInterval   time.Duration    `mapstructure:"sample_interval"`
	Samples          int              `mapstructure:"samples"`
	BandMin          float64          `mapstructure:"band_min"`
	BandMax          float64          `mapstructure:"band_max"`
	MaxPrice         float64          `mapstructure:"max_price"`
	MissLimit        int              `mapstructure:"miss_limit"`
	EvictAfterCycles int              `mapstructure:"evict_after_cycles"`
	MaxAge           time.Duration    `mapstructure:"max_age"`
	Stake            float64          `mapstructure:"stake"`
	Strategies       []StrategyConfig `mapstructure:"strategies"`
}

// StrategyConfig describes one named rise rule
type StrategyConfig struct {
	Name      string         `mapstructure:"name"`
	MinMinute int            `mapstructure:"min_minute"`
	MaxMinute int            `mapstructure:"max_minute"`
	MinRise   float64        `mapstructure:"min_rise"`
	MaxRise   float64        `mapstructure:"max_rise"`
	Target    models.Target  `mapstructure:"target"`
	FollowUp  *models.Target `mapstructure:"follow_up"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Settlements    bool          `mapstructure:"settlements"` // also notify won/lost
}

// StorageConfig holds the signal journal configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"` // empty disables the journal
	MaxSignals int    `mapstructure:"max_signals"`
}

// StatusConfig holds the HTTP status surface configuration
type StatusConfig struct {
	Addr           string   `mapstructure:"addr"` // empty disables the server
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, .env, and environment variables.
// A missing file leaves defaults and environment in effect.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("QUOTEJUMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by earlier deployments of the bot
	_ = v.BindEnv("telegram.bot_token", "QUOTEJUMP_TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "QUOTEJUMP_TELEGRAM_CHAT_ID", "CHAT_ID")
	_ = v.BindEnv("feed.api_key", "QUOTEJUMP_FEED_API_KEY", "RAPIDAPI_KEY")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Feed defaults
	v.SetDefault("feed.base_url", "https://api-football-v1.p.rapidapi.com/v3")
	v.SetDefault("feed.api_host", "api-football-v1.p.rapidapi.com")
	v.SetDefault("feed.poll_interval", "10s")
	v.SetDefault("feed.timeout", "10s")
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.retry_delay_base", "1s")
	v.SetDefault("feed.rate_limit_cooldown", "30m")
	v.SetDefault("feed.max_odds_calls", 8)
	v.SetDefault("feed.league_keywords", []string{})
	v.SetDefault("feed.league_exclude", []string{"women", "u19", "u21", "friendly"})

	// Monitor defaults
	v.SetDefault("monitor.confirm_polls", 2)
	v.SetDefault("monitor.settle_delay", "60s")
	v.SetDefault("monitor.sample_interval", "20s")
	v.SetDefault("monitor.samples", 3)
	v.SetDefault("monitor.band_min", 1.30)
	v.SetDefault("monitor.band_max", 1.80)
	v.SetDefault("monitor.max_price", 2.20)
	v.SetDefault("monitor.miss_limit", 5)
	v.SetDefault("monitor.evict_after_cycles", 3)
	v.SetDefault("monitor.max_age", "4h")
	v.SetDefault("monitor.stake", 10.0)
	v.SetDefault("monitor.strategies", []map[string]interface{}{
		{
			"name":       "early-window",
			"min_minute": 0,
			"max_minute": 45,
			"min_rise":   0.06,
			"target":     map[string]interface{}{"checkpoint": "half_time", "min_goals": 2},
			"follow_up":  map[string]interface{}{"checkpoint": "full_time", "min_goals": 2},
		},
		{
			"name":       "late-window",
			"min_minute": 46,
			"max_minute": 80,
			"min_rise":   0.06,
			"target":     map[string]interface{}{"checkpoint": "full_time", "min_goals": 2},
		},
	})

	// Telegram defaults
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.max_retries", 2) // one retry
	v.SetDefault("telegram.retry_delay_base", "2s")
	v.SetDefault("telegram.settlements", true)

	// Storage defaults
	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.max_signals", 5000)

	// Status defaults
	v.SetDefault("status.addr", "")
	v.SetDefault("status.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Feed config
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required")
	}
	if c.Feed.APIKey == "" {
		return fmt.Errorf("feed.api_key is required (or RAPIDAPI_KEY)")
	}
	if c.Feed.PollInterval < time.Second {
		return fmt.Errorf("feed.poll_interval must be at least 1 second")
	}
	if c.Feed.Timeout <= 0 {
		return fmt.Errorf("feed.timeout must be positive")
	}
	if c.Feed.MaxRetries < 1 {
		return fmt.Errorf("feed.max_retries must be at least 1")
	}
	if c.Feed.RateLimitCooldown < time.Minute {
		return fmt.Errorf("feed.rate_limit_cooldown must be at least 1 minute")
	}
	if c.Feed.MaxOddsCalls < 1 {
		return fmt.Errorf("feed.max_odds_calls must be at least 1")
	}

	// Validate Monitor config
	if c.Monitor.ConfirmPolls < 1 {
		return fmt.Errorf("monitor.confirm_polls must be at least 1")
	}
	if c.Monitor.SettleDelay < 0 {
		return fmt.Errorf("monitor.settle_delay must not be negative")
	}
	if c.Monitor.SampleInterval <= 0 {
		return fmt.Errorf("monitor.sample_interval must be positive")
	}
	if c.Monitor.Samples < 1 {
		return fmt.Errorf("monitor.samples must be at least 1")
	}
	if c.Monitor.BandMin <= 1.0 {
		return fmt.Errorf("monitor.band_min must be greater than 1.0 (decimal odds)")
	}
	if c.Monitor.BandMax <= c.Monitor.BandMin {
		return fmt.Errorf("monitor.band_max must be greater than monitor.band_min")
	}
	if c.Monitor.MaxPrice < c.Monitor.BandMax {
		return fmt.Errorf("monitor.max_price must be at least monitor.band_max")
	}
	if c.Monitor.MissLimit < 1 {
		return fmt.Errorf("monitor.miss_limit must be at least 1")
	}
	if c.Monitor.EvictAfterCycles < 1 {
		return fmt.Errorf("monitor.evict_after_cycles must be at least 1")
	}
	if c.Monitor.MaxAge < time.Hour {
		return fmt.Errorf("monitor.max_age must be at least 1 hour")
	}
	if c.Monitor.Stake < 0 {
		return fmt.Errorf("monitor.stake must not be negative")
	}
	if len(c.Monitor.Strategies) == 0 {
		return fmt.Errorf("monitor.strategies must contain at least one strategy")
	}
	seen := make(map[string]bool)
	for _, s := range c.MonitorSettings().Strategies {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("monitor.strategies: %w", err)
		}
		if seen[s.Name] {
			return fmt.Errorf("monitor.strategies: duplicate name %q", s.Name)
		}
		seen[s.Name] = true
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxSignals < 1 {
		return fmt.Errorf("storage.max_signals must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// MonitorSettings converts the monitor section into the detector's configuration.
func (c *Config) MonitorSettings() monitor.Config {
	strategies := make([]monitor.Strategy, 0, len(c.Monitor.Strategies))
	for _, s := range c.Monitor.Strategies {
		strategies = append(strategies, monitor.Strategy{
			Name:      s.Name,
			MinMinute: s.MinMinute,
			MaxMinute: s.MaxMinute,
			MinRise:   s.MinRise,
			MaxRise:   s.MaxRise,
			Target:    s.Target,
			FollowUp:  s.FollowUp,
		})
	}
	return monitor.Config{
		ConfirmPolls:     c.Monitor.ConfirmPolls,
		SettleDelay:      c.Monitor.SettleDelay,
		SampleInterval:   c.Monitor.SampleInterval,
		Samples:          c.Monitor.Samples,
		BandMin:          c.Monitor.BandMin,
		BandMax:          c.Monitor.BandMax,
		MaxPrice:         c.Monitor.MaxPrice,
		MissLimit:        c.Monitor.MissLimit,
		EvictAfterCycles: c.Monitor.EvictAfterCycles,
		MaxAge:           c.Monitor.MaxAge,
		Stake:            c.Monitor.Stake,
		Strategies:       strategies,
	}
}
