package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/trendmonster/internal/allocation"
)

// Config represents the complete application configuration
type Config struct {
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// MarketDataConfig holds history endpoint and session configuration
type MarketDataConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryWait       time.Duration `mapstructure:"retry_wait"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	VIXSymbol       string        `mapstructure:"vix_symbol"`
	VIX3MSymbol     string        `mapstructure:"vix3m_symbol"`
	SPYSymbol       string        `mapstructure:"spy_symbol"`
	Timezone        string        `mapstructure:"timezone"`
	DailyClose      string        `mapstructure:"daily_close"`  // "HH:MM" in Timezone
	WeeklyClose     string        `mapstructure:"weekly_close"` // "HH:MM" on Friday
}

// WeightConfig is one band's SPY/TQQQ split
type WeightConfig struct {
	SPY  float64 `mapstructure:"spy"`
	TQQQ float64 `mapstructure:"tqqq"`
}

// StrategyConfig holds the allocation rule parameters
type StrategyConfig struct {
	SMAWeeks    int            `mapstructure:"sma_weeks"`
	RSIWeeks    int            `mapstructure:"rsi_weeks"`
	TrendFilter bool           `mapstructure:"trend_filter"`
	Tolerance   float64        `mapstructure:"tolerance"`
	Thresholds  []float64      `mapstructure:"thresholds"`
	Weights     []WeightConfig `mapstructure:"weights"`
}

// MonitorConfig holds evaluation loop behavior
type MonitorConfig struct {
	AssumeFilled bool `mapstructure:"assume_filled"`
	DedupeBars   int  `mapstructure:"dedupe_bars"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath           string `mapstructure:"db_path"`
	MaxBarsPerSeries int    `mapstructure:"max_bars_per_series"`
}

// ServerConfig holds the status API configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TRENDMONSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
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
	// Market data defaults
	v.SetDefault("marketdata.base_url", "https://stooq.com")
	v.SetDefault("marketdata.timeout", "30s")
	v.SetDefault("marketdata.max_retries", 3)
	v.SetDefault("marketdata.retry_wait", "1s")
	v.SetDefault("marketdata.breaker_failures", 5)
	v.SetDefault("marketdata.breaker_timeout", "5m")
	v.SetDefault("marketdata.poll_interval", "15m")
	v.SetDefault("marketdata.vix_symbol", "^vix")
	v.SetDefault("marketdata.vix3m_symbol", "^vix3m")
	v.SetDefault("marketdata.spy_symbol", "spy.us")
	v.SetDefault("marketdata.timezone", "America/New_York")
	v.SetDefault("marketdata.daily_close", "16:15")
	v.SetDefault("marketdata.weekly_close", "16:00")

	// Strategy defaults
	v.SetDefault("strategy.sma_weeks", 50)
	v.SetDefault("strategy.rsi_weeks", 14)
	v.SetDefault("strategy.trend_filter", true)
	v.SetDefault("strategy.tolerance", allocation.DefaultTolerance)
	v.SetDefault("strategy.thresholds", allocation.DefaultThresholds())
	defaultWeights := make([]map[string]interface{}, 0, len(allocation.Levels))
	for _, b := range allocation.DefaultBands() {
		defaultWeights = append(defaultWeights, map[string]interface{}{"spy": b.SPY, "tqqq": b.TQQQ})
	}
	v.SetDefault("strategy.weights", defaultWeights)

	// Monitor defaults
	v.SetDefault("monitor.assume_filled", true)
	v.SetDefault("monitor.dedupe_bars", 64)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/trendmonster.db")
	v.SetDefault("storage.max_bars_per_series", 1500)

	// Server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate market data config
	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("marketdata.base_url is required")
	}
	if c.MarketData.Timeout <= 0 {
		return fmt.Errorf("marketdata.timeout must be positive")
	}
	if c.MarketData.MaxRetries < 0 {
		return fmt.Errorf("marketdata.max_retries must not be negative")
	}
	if c.MarketData.PollInterval < 1*time.Minute {
		return fmt.Errorf("marketdata.poll_interval must be at least 1 minute")
	}
	if c.MarketData.VIXSymbol == "" || c.MarketData.VIX3MSymbol == "" || c.MarketData.SPYSymbol == "" {
		return fmt.Errorf("marketdata symbols are required")
	}
	if _, err := time.LoadLocation(c.MarketData.Timezone); err != nil {
		return fmt.Errorf("marketdata.timezone is invalid: %w", err)
	}
	for name, clock := range map[string]string{"daily_close": c.MarketData.DailyClose, "weekly_close": c.MarketData.WeeklyClose} {
		if _, err := time.Parse("15:04", clock); err != nil {
			return fmt.Errorf("marketdata.%s must be HH:MM", name)
		}
	}

	// Validate strategy config
	if c.Strategy.SMAWeeks < 2 {
		return fmt.Errorf("strategy.sma_weeks must be at least 2")
	}
	if c.Strategy.RSIWeeks < 1 {
		return fmt.Errorf("strategy.rsi_weeks must be at least 1")
	}
	if c.Strategy.Tolerance < 0 || c.Strategy.Tolerance >= 1 {
		return fmt.Errorf("strategy.tolerance must be between 0.0 and 1.0")
	}
	if _, err := c.StrategyBands(); err != nil {
		return fmt.Errorf("strategy bands are invalid: %w", err)
	}

	// Validate monitor config
	if c.Monitor.DedupeBars < 1 {
		return fmt.Errorf("monitor.dedupe_bars must be at least 1")
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

	// Validate storage config
	if c.Storage.MaxBarsPerSeries < c.Strategy.SMAWeeks+1 {
		return fmt.Errorf("storage.max_bars_per_series must exceed strategy.sma_weeks")
	}

	// Validate server config
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535")
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

// StrategyBands converts the configured thresholds and weights to a band table.
func (c *Config) StrategyBands() ([]allocation.Band, error) {
	weights := make([]allocation.Weights, len(c.Strategy.Weights))
	for i, w := range c.Strategy.Weights {
		weights[i] = allocation.Weights{SPY: w.SPY, TQQQ: w.TQQQ}
	}
	return allocation.NewBands(c.Strategy.Thresholds, weights)
}

// EngineOptions builds allocation engine options from the strategy section.
func (c *Config) EngineOptions() (allocation.Options, error) {
	bands, err := c.StrategyBands()
	if err != nil {
		return allocation.Options{}, err
	}
	tolerance := c.Strategy.Tolerance
	return allocation.Options{
		Bands:       bands,
		Tolerance:   &tolerance,
		TrendFilter: c.Strategy.TrendFilter,
	}, nil
}
