// Command tradesim replays stored candles through indicators and strategies
// and simulates the resulting trades.
//
// Usage:
//
//	tradesim import --market EURUSD --tf M1 eurusd_m1.csv
//	tradesim backtest --config config/backtest.yaml
//	tradesim runs [run-id]
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tradesim",
		Short:        "Multi-timeframe candle replay and trade simulator",
		SilenceUsage: true,
	}
	root.AddCommand(newBacktestCmd(), newImportCmd(), newRunsCmd())
	return root
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
