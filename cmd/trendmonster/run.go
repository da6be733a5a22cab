package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/trendmonster/internal/logger"
	"github.com/rewired-gh/trendmonster/internal/metrics"
	"github.com/rewired-gh/trendmonster/internal/monitor"
	"github.com/rewired-gh/trendmonster/internal/server"
	"github.com/rewired-gh/trendmonster/internal/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	RunE:  runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	mon, err := newMonitor(cfg, store)
	if err != nil {
		return err
	}
	mon.SetRecorder(metrics.New(prometheus.DefaultRegisterer))

	var notifier monitor.Notifier = monitor.LogNotifier{}
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return err
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, mon)
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr(), mon, prometheus.DefaultGatherer)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("HTTP server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown: %v", err)
			}
		}()
	}

	logger.Info("Starting monitoring service (interval: %v, trend_filter: %v, sma_weeks: %d)",
		cfg.MarketData.PollInterval,
		cfg.Strategy.TrendFilter,
		cfg.Strategy.SMAWeeks,
	)

	ticker := time.NewTicker(cfg.MarketData.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial monitoring cycle")
	handleCycleResult(runMonitoringCycle(ctx, mon, notifier))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			handleCycleResult(runMonitoringCycle(ctx, mon, notifier))
			if err := store.RotateBars(); err != nil {
				logger.Warn("Failed to rotate bars: %v", err)
			}
		}
	}
}

func runMonitoringCycle(ctx context.Context, mon *monitor.Monitor, notifier monitor.Notifier) error {
	startTime := time.Now()
	logger.Debug("Starting monitoring cycle")

	eval, err := mon.RunCycle(ctx)
	if err != nil {
		return err
	}

	if len(eval.Alerts) > 0 {
		if err := mon.Deliver(notifier, eval.Alerts); err != nil {
			logger.Error("Failed to send notification: %v", err)
		} else {
			logger.Info("Sent %d alerts", len(eval.Alerts))
		}
	}

	logger.Info("Monitoring cycle completed in %v (evaluated: %v, live ratio: %.4f)",
		time.Since(startTime), eval.Evaluated, eval.Live.VIXRatio)
	return nil
}
