package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"tradesim/config"
	"tradesim/internal/backtest"
	"tradesim/internal/chartfeed"
	"tradesim/internal/logger"
	"tradesim/internal/marketdata/replay"
	"tradesim/internal/metrics"
	redisstore "tradesim/internal/store/redis"
	sqlitestore "tradesim/internal/store/sqlite"
)

func newBacktestCmd() *cobra.Command {
	var (
		cfgFile string
		runID   string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a backtest profile against stored candles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			results, err := runBacktest(ctx, cfg, runID)
			if len(results) > 0 {
				if perr := printResults(cmd.OutOrStdout(), results, asJSON); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "config/backtest.yaml", "path to the run profile")
	cmd.Flags().StringVar(&runID, "run-id", "", "run ID (default: random UUID)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

// runBacktest wires storage, optional publishers and servers around a
// Backtester and runs the profile once.
func runBacktest(ctx context.Context, cfg *config.Config, runID string) ([]backtest.Result, error) {
	if runID == "" {
		runID = logger.NewRunID()
	}
	level, _ := logger.ParseLevel(cfg.Log.Level)
	log := logger.Init("tradesim", logger.Options{Level: level, Format: cfg.Log.Format})
	ctx = logger.WithRunID(ctx, runID)

	plan, err := backtest.PlanFromConfig(cfg, runID)
	if err != nil {
		return nil, err
	}

	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	health.RunStarted(runID, time.Now())

	// ---- SQLite: candle source + trade journal ----
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	reader, err := sqlitestore.NewReader(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite reader: %w", err)
	}
	defer reader.Close()
	journal, err := sqlitestore.NewJournal(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: %w", err)
	}
	defer journal.Close()
	health.SetSQLiteOK(true)

	sinks := []backtest.Sink{backtest.JournalSink{Recorder: journal, RunID: runID}}

	// ---- Redis: best-effort stream publishing ----
	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		health.SetRedisEnabled(true)
		bw, err := newRedisSink(cfg, runID, prom, log)
		if err != nil {
			log.Warn("redis unavailable, continuing without stream publishing", "error", err)
		} else {
			defer bw.Close()
			rdb = bw.Client()
			health.CheckRedis(ctx, rdb)
			sinks = append(sinks, bw)
		}
	}
	health.StartLivenessChecker(ctx, rdb, journal.DB(), 10*time.Second)

	// ---- Chart feed ----
	if cfg.Feed.Enabled {
		hub := chartfeed.NewHub(cfg.Feed.ReplaySize)
		hub.OnDrop = func() { prom.FeedDropsTotal.Inc() }
		hub.OnClients = func(n int) { prom.FeedClients.Set(float64(n)) }
		feed := chartfeed.NewServer(cfg.Feed.Addr, hub)
		feed.Start()
		defer stopServer(feed.Stop)
		sinks = append(sinks, hub)
	}

	// ---- Metrics + health ----
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, health, prometheus.DefaultGatherer)
		srv.Start()
		defer stopServer(srv.Stop)
	}

	b := &backtest.Backtester{
		Loader:  replay.New(reader),
		Sinks:   sinks,
		Metrics: prom,
		Logger:  log,
	}
	return b.RunAll(ctx, plan)
}

// redisSink pairs the buffered writer with the client it publishes through.
type redisSink struct {
	*redisstore.BufferedWriter
	writer *redisstore.Writer
}

func (r redisSink) Client() *goredis.Client { return r.writer.Client() }

func newRedisSink(cfg *config.Config, runID string, prom *metrics.Metrics, log *slog.Logger) (redisSink, error) {
	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxLen:      cfg.Redis.MaxLen,
		ConnectWait: cfg.Redis.ConnectWait,
	})
	if err != nil {
		return redisSink{}, err
	}

	cb := redisstore.NewCircuitBreaker(cfg.Redis.MaxFailures, cfg.Redis.ResetTimeout)
	cb.OnStateChange = func(from, to redisstore.State) {
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}
	bw := redisstore.NewBufferedWriter(w, cb, runID, cfg.Redis.BufferSize)
	bw.OnBuffer = func(n int) { prom.RedisBufferedWrites.Add(float64(n)) }
	bw.OnFlush = func(n int) { log.Info("flushed buffered redis events", "count", n) }
	return redisSink{BufferedWriter: bw, writer: w}, nil
}

func stopServer(stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
}

func printResults(out io.Writer, results []backtest.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKET\tCANDLES\tSIGNALS\tTRADES\tWINS\tLOSSES\tWIN%\tNET PIPS\tNET PROFIT\tMAX DD\tAVG R")
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.1f\t%s\t%s\t%s\t%.2f\n",
			r.Market, r.BaseCandles, r.Signals, s.Trades, s.Wins, s.Losses, s.WinRate,
			s.NetPips.StringFixed(1), s.NetProfit.StringFixed(5), s.MaxDrawdown.StringFixed(5), s.AvgRMultiple)
	}
	if len(results) > 0 {
		fmt.Fprintf(tw, "\nrun %s\n", results[0].RunID)
	}
	return tw.Flush()
}
