package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tradesim/internal/metrics"
	"tradesim/internal/model"
	sqlitestore "tradesim/internal/store/sqlite"
)

func newImportCmd() *cobra.Command {
	var (
		dbPath      string
		market      string
		tfName      string
		batchSize   int
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "import [flags] FILE...",
		Short: "Import CSV candles (time,open,high,low,close) into SQLite",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			tf, err := model.ParseTimeframe(tfName)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			prom := metrics.NewMetrics(nil)
			if metricsAddr != "" {
				srv := metrics.NewServer(metricsAddr, metrics.NewHealthStatus(), nil)
				srv.Start()
				defer stopServer(srv.Stop)
			}

			n, err := importCSV(ctx, dbPath, market, tf, batchSize, files, prom)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s %s candles into %s\n", n, market, tf, dbPath)
			return err
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", getEnv("TRADESIM_DB", "data/tradesim.db"), "SQLite database path")
	cmd.Flags().StringVar(&market, "market", "", "market name, e.g. EURUSD")
	cmd.Flags().StringVar(&tfName, "tf", "", "timeframe of the rows, e.g. M1")
	cmd.Flags().IntVar(&batchSize, "batch", 500, "candles per transaction")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics while importing (empty = off)")
	_ = cmd.MarkFlagRequired("market")
	_ = cmd.MarkFlagRequired("tf")
	return cmd
}

// importCSV parses files in order and feeds them to a batching SQLite
// writer. A parse error cancels the writer after it flushes what it has.
func importCSV(ctx context.Context, dbPath, market string, tf model.Timeframe, batchSize int, files []string, prom *metrics.Metrics) (int, error) {
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath, BatchSize: batchSize})
	if err != nil {
		return 0, err
	}
	defer w.Close()
	w.OnCommit = func(_ int, d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }

	ch := make(chan model.Candle, batchSize)
	g, gctx := errgroup.WithContext(ctx)

	var written int
	g.Go(func() error {
		var err error
		written, err = w.Run(gctx, market, ch)
		return err
	})
	g.Go(func() error {
		defer close(ch)
		for _, path := range files {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			n, err := readCSVCandles(gctx, f, tf, ch)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Printf("[import] read %d candles from %s", n, path)
		}
		return nil
	})
	err = g.Wait()
	return written, err
}
