package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/trendmonster/internal/allocation"
	"github.com/rewired-gh/trendmonster/internal/models"
	"github.com/rewired-gh/trendmonster/internal/report"
	"github.com/rewired-gh/trendmonster/internal/storage"
)

var signalFormat string

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Fetch data, evaluate once and print the dashboard",
	Long: `Run a single evaluation against the configured data source and print it.
No alerts are sent and holdings are not changed.`,
	RunE: runSignal,
}

var holdingsCmd = &cobra.Command{
	Use:   "holdings",
	Short: "Show or record the current SPY/TQQQ allocation",
}

var holdingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the recorded allocation",
	RunE:  runHoldingsShow,
}

var holdingsSetCmd = &cobra.Command{
	Use:   "set <spy> <tqqq>",
	Short: "Record the allocation, as fractions (0.6 0.4) or percentages (60% 40%)",
	Args:  cobra.ExactArgs(2),
	RunE:  runHoldingsSet,
}

var bandsCmd = &cobra.Command{
	Use:   "bands",
	Short: "Print the configured VIX-ratio allocation table",
	RunE:  runBands,
}

func init() {
	signalCmd.Flags().StringVar(&signalFormat, "format", "text", "Output format: text or json")
	holdingsCmd.AddCommand(holdingsShowCmd, holdingsSetCmd)
	rootCmd.AddCommand(signalCmd, holdingsCmd, bandsCmd)
}

func runSignal(cmd *cobra.Command, _ []string) error {
	if signalFormat != "text" && signalFormat != "json" {
		return fmt.Errorf("unknown format %q", signalFormat)
	}
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

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	eval, err := mon.RunCycle(ctx)
	if err != nil {
		return err
	}

	if signalFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.SignalJSON(eval))
	}
	fmt.Print(report.Text(report.Rows(eval)))
	return nil
}

func runHoldingsShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	h, err := store.LoadHoldings()
	if errors.Is(err, storage.ErrNoHoldings) {
		fmt.Println("No holdings recorded; evaluations assume all cash.")
		return nil
	}
	if err != nil {
		return err
	}
	printHoldings(*h)
	return nil
}

func runHoldingsSet(_ *cobra.Command, args []string) error {
	h, err := models.ParseHoldings(args[0], args[1])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := store.SaveHoldings(&h); err != nil {
		return err
	}
	printHoldings(h)
	return nil
}

func printHoldings(h models.Holdings) {
	fmt.Printf("SPY: %.1f%% | TQQQ: %.1f%% | Cash: %.1f%% (updated %s)\n",
		h.SPY*100, h.TQQQ*100, h.Cash()*100, h.UpdatedAt.Format(time.RFC3339))
}

func runBands(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	engine, err := allocation.NewEngine(opts)
	if err != nil {
		return err
	}
	for _, b := range engine.Bands() {
		fmt.Println(b)
	}
	if engine.TrendFilter() {
		fmt.Println("Weekly downtrend overrides every band with 100% cash.")
	}
	return nil
}
