package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tradesim/config"
	"tradesim/internal/indicator"
	"tradesim/internal/marketdata/replay"
	"tradesim/internal/marketdata/runner"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/strategy"
)

// SeriesLoader loads the runner input of one market.
type SeriesLoader interface {
	Load(ctx context.Context, market string, tfs []model.Timeframe, from, to int64) (runner.Series, error)
}

// StrategyFactory returns fresh strategy instances for one market.
type StrategyFactory func(market model.Market) ([]strategy.Strategy, error)

// Plan describes a multi-market run.
type Plan struct {
	RunID      string
	Markets    []model.Market
	Timeframes []model.Timeframe // stored series to load
	From, To   int64             // ticks, 0 = unbounded
	Indicators []indicator.TFIndicatorConfig
	TigerStep  float64
	Strategies StrategyFactory // nil = no strategies
	CloseAtEnd bool
	Speed      float64 // replay pacing, 0 = unpaced
	Workers    int
}

// PlanFromConfig builds a Plan from a loaded profile.
func PlanFromConfig(cfg *config.Config, runID string) (Plan, error) {
	from, to, err := cfg.Range()
	if err != nil {
		return Plan{}, err
	}
	p := Plan{
		RunID:      runID,
		Markets:    cfg.MarketList(),
		Timeframes: cfg.SeriesTimeframes(),
		From:       from,
		To:         to,
		Indicators: cfg.Indicators,
		TigerStep:  cfg.Tiger.Step,
		CloseAtEnd: cfg.CloseAtEnd,
		Speed:      cfg.Speed,
		Workers:    cfg.Workers,
	}
	if cfg.Strategy.Enabled {
		params := cfg.Strategy.EMACrossoverParams
		p.Strategies = func(model.Market) ([]strategy.Strategy, error) {
			s, err := strategy.NewEMACrossover(params)
			if err != nil {
				return nil, err
			}
			return []strategy.Strategy{s}, nil
		}
	}
	return p, nil
}

// Backtester runs plans. Sinks are shared by all sessions of a run.
type Backtester struct {
	Loader  SeriesLoader
	Sinks   []Sink
	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger     // optional
}

// RunAll runs one session per market, at most p.Workers at a time. Results
// are in market order. The first failing market cancels the others; its
// error is returned along with whatever results completed.
func (b *Backtester) RunAll(ctx context.Context, p Plan) ([]Result, error) {
	if len(p.Markets) == 0 {
		return nil, errors.New("backtest: no markets")
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("run started", "run_id", p.RunID, "markets", len(p.Markets), "workers", workers)

	if b.Metrics != nil {
		b.Metrics.RunsActive.Inc()
		defer b.Metrics.RunsActive.Dec()
	}
	start := time.Now()

	results := make([]Result, len(p.Markets))
	done := make([]bool, len(p.Markets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, m := range p.Markets {
		g.Go(func() error {
			res, err := b.runMarket(gctx, p, m, log)
			results[i] = res
			if err != nil {
				return fmt.Errorf("market %s: %w", m.Name, err)
			}
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	if b.Metrics != nil {
		b.Metrics.RunDuration.Observe(time.Since(start).Seconds())
		b.Metrics.RunsTotal.WithLabelValues(runStatus(err)).Inc()
	}

	out := results[:0]
	for i := range results {
		if done[i] {
			out = append(out, results[i])
		}
	}
	if err != nil {
		log.Error("run failed", "run_id", p.RunID, "error", err)
		return out, err
	}
	log.Info("run finished", "run_id", p.RunID, "duration", time.Since(start).String())
	return out, nil
}

func (b *Backtester) runMarket(ctx context.Context, p Plan, m model.Market, log *slog.Logger) (Result, error) {
	series, err := b.Loader.Load(ctx, m.Name, p.Timeframes, p.From, p.To)
	if err != nil {
		return Result{}, err
	}

	var strategies []strategy.Strategy
	if p.Strategies != nil {
		if strategies, err = p.Strategies(m); err != nil {
			return Result{}, err
		}
	}

	opts := Options{
		RunID:      p.RunID,
		Market:     m,
		Indicators: p.Indicators,
		TigerStep:  p.TigerStep,
		Strategies: strategies,
		Sinks:      b.Sinks,
		CloseAtEnd: p.CloseAtEnd,
		Metrics:    b.Metrics,
		Logger:     log,
	}
	if p.Speed > 0 {
		opts.Pacer = replay.NewPacer(p.Speed)
	}

	sess, err := NewSession(series, opts)
	if err != nil {
		return Result{}, err
	}
	return sess.Run(ctx)
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
