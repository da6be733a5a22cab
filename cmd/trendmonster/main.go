package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/trendmonster/internal/allocation"
	"github.com/rewired-gh/trendmonster/internal/config"
	"github.com/rewired-gh/trendmonster/internal/logger"
	"github.com/rewired-gh/trendmonster/internal/marketdata"
	"github.com/rewired-gh/trendmonster/internal/monitor"
	"github.com/rewired-gh/trendmonster/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "trendmonster",
	Short: "VIX-ratio and weekly-trend SPY/TQQQ allocation monitor",
	Long: `TrendMonster watches the confirmed daily VIX/VIX3M ratio and the weekly
SPY trend, maps them to an SPY/TQQQ/cash target allocation and alerts when the
current holdings need a rebalance.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var files []logger.FileConfig
	if cfg.Logging.File != "" {
		files = append(files, logger.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format, files...)
	logger.Info("Configuration loaded from %s", configPath)
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.Storage, error) {
	store, err := storage.New(cfg.Storage.MaxBarsPerSeries, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// newMonitor wires the market data client, session and engine into a monitor.
func newMonitor(cfg *config.Config, store *storage.Storage) (*monitor.Monitor, error) {
	session, err := marketdata.NewSession(cfg.MarketData.Timezone, cfg.MarketData.DailyClose, cfg.MarketData.WeeklyClose)
	if err != nil {
		return nil, err
	}

	client := marketdata.NewClient(
		cfg.MarketData.BaseURL,
		cfg.MarketData.Timeout,
		session.Location(),
		marketdata.ClientConfig{
			MaxRetries:      cfg.MarketData.MaxRetries,
			RetryWait:       cfg.MarketData.RetryWait,
			BreakerFailures: cfg.MarketData.BreakerFailures,
			BreakerTimeout:  cfg.MarketData.BreakerTimeout,
		},
	)

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	engine, err := allocation.NewEngine(opts)
	if err != nil {
		return nil, err
	}

	return monitor.New(client, store, session, engine, monitor.Config{
		VIXSymbol:    cfg.MarketData.VIXSymbol,
		VIX3MSymbol:  cfg.MarketData.VIX3MSymbol,
		SPYSymbol:    cfg.MarketData.SPYSymbol,
		SMAWeeks:     cfg.Strategy.SMAWeeks,
		RSIWeeks:     cfg.Strategy.RSIWeeks,
		AssumeFilled: cfg.Monitor.AssumeFilled,
		DedupeBars:   cfg.Monitor.DedupeBars,
	}), nil
}

func closeStore(store *storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}
