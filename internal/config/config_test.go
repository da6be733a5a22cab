package config

import (
	"os"
	"testing"
	"time"

	"github.com/rewired-gh/trendmonster/internal/allocation"
	"github.com/rewired-gh/trendmonster/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
marketdata:
  poll_interval: 30m
  daily_close: "16:20"

strategy:
  sma_weeks: 40
  trend_filter: false

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MarketData.PollInterval != 30*time.Minute {
		t.Errorf("Unexpected poll interval: %v", cfg.MarketData.PollInterval)
	}
	if cfg.MarketData.DailyClose != "16:20" {
		t.Errorf("Unexpected daily close: %s", cfg.MarketData.DailyClose)
	}
	if cfg.MarketData.VIX3MSymbol != "^vix3m" {
		t.Errorf("Expected default vix3m symbol, got %s", cfg.MarketData.VIX3MSymbol)
	}
	if cfg.Strategy.SMAWeeks != 40 {
		t.Errorf("Unexpected sma weeks: %d", cfg.Strategy.SMAWeeks)
	}
	if cfg.Strategy.TrendFilter {
		t.Error("Expected trend filter to be disabled")
	}
	if cfg.Strategy.Tolerance != allocation.DefaultTolerance {
		t.Errorf("Unexpected tolerance: %f", cfg.Strategy.Tolerance)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	bands, err := cfg.StrategyBands()
	if err != nil {
		t.Fatalf("StrategyBands failed: %v", err)
	}
	want := allocation.DefaultBands()
	for i := range want {
		if bands[i] != want[i] {
			t.Errorf("band %d = %+v, want %+v", i, bands[i], want[i])
		}
	}
}

func TestLoad_CustomBands(t *testing.T) {
	path := writeConfig(t, `
strategy:
  thresholds: [0.75, 0.85, 0.95, 1.10]
  weights:
    - {spy: 0.20, tqqq: 0.80}
    - {spy: 0.40, tqqq: 0.60}
    - {spy: 0.60, tqqq: 0.40}
    - {spy: 0.80, tqqq: 0.20}
    - {spy: 0.90, tqqq: 0.00}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatalf("EngineOptions failed: %v", err)
	}
	if !opts.TrendFilter {
		t.Error("Expected trend filter enabled by default")
	}
	if got := opts.Bands[4].Cash(); got < 0.0999 || got > 0.1001 {
		t.Errorf("Expected 10%% cash in the top band, got %f", got)
	}
	if opts.Bands[0].Upper != 0.75 {
		t.Errorf("Unexpected first edge: %f", opts.Bands[0].Upper)
	}
}

func TestEngineOptions_ZeroTolerance(t *testing.T) {
	t.Setenv("TRENDMONSTER_STRATEGY_TOLERANCE", "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatalf("EngineOptions failed: %v", err)
	}
	if opts.Tolerance == nil || *opts.Tolerance != 0 {
		t.Fatalf("Expected explicit zero tolerance, got %v", opts.Tolerance)
	}

	engine, err := allocation.NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	d, err := engine.Decide(models.MarketSignal{VIXRatioDaily: 1.0, WeeklyTrendUp: true}, 0.751, 0.249)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !d.RebalanceNeeded {
		t.Error("Expected a 0.1pp drift to need a rebalance at zero tolerance")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRENDMONSTER_MARKETDATA_SPY_SYMBOL", "spy.uk")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MarketData.SPYSymbol != "spy.uk" {
		t.Errorf("Expected env override, got %s", cfg.MarketData.SPYSymbol)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.ChatID = "1"
		}},
		{"poll interval too short", func(c *Config) { c.MarketData.PollInterval = 10 * time.Second }},
		{"bad timezone", func(c *Config) { c.MarketData.Timezone = "Nowhere/Land" }},
		{"bad daily close", func(c *Config) { c.MarketData.DailyClose = "4:15pm" }},
		{"sma too short", func(c *Config) { c.Strategy.SMAWeeks = 1 }},
		{"tolerance out of range", func(c *Config) { c.Strategy.Tolerance = 1.5 }},
		{"unordered thresholds", func(c *Config) { c.Strategy.Thresholds = []float64{0.9, 0.8, 0.95, 1.05} }},
		{"missing band weights", func(c *Config) { c.Strategy.Weights = c.Strategy.Weights[:4] }},
		{"storage smaller than sma", func(c *Config) { c.Storage.MaxBarsPerSeries = 10 }},
		{"bad server port", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 0
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error")
			}
		})
	}
}
