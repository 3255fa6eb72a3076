// Package backtest runs simulations: a Session drives one market's runner
// through the indicator engine, the strategies and the trade simulator, and
// fans the results out to sinks. RunAll runs one session per market on a
// bounded worker pool.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/indicator"
	"tradesim/internal/marketdata/replay"
	"tradesim/internal/marketdata/runner"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/simulation"
	"tradesim/internal/strategy"
)

// ErrMissingIndicator is returned when a strategy reads an indicator slot
// that is not configured on the base timeframe.
var ErrMissingIndicator = errors.New("backtest: strategy indicator not configured on base timeframe")

// Sink receives a session's output. Implementations shared between
// sessions must be safe for concurrent use.
type Sink interface {
	OnCandle(ctx context.Context, market string, v model.CandleAndIndicators) error
	OnTransition(ctx context.Context, market string, tr simulation.Transition) error
}

// SummarySink is implemented by sinks that also want the final summary.
type SummarySink interface {
	OnSummary(ctx context.Context, market string, s simulation.Summary) error
}

type slotReader interface {
	RequiredSlots() []model.IndicatorSlot
}

// Options configures a Session.
type Options struct {
	RunID      string
	Market     model.Market
	Indicators []indicator.TFIndicatorConfig
	TigerStep  float64 // 0 disables the Tiger timeframe
	Strategies []strategy.Strategy
	Sinks      []Sink
	CloseAtEnd bool
	Pacer      *replay.Pacer    // optional
	Metrics    *metrics.Metrics // optional
	Logger     *slog.Logger     // optional
}

// Result is the outcome of one session.
type Result struct {
	RunID       string                  `json:"run_id"`
	Market      string                  `json:"market"`
	BaseCandles int                     `json:"base_candles"`
	Candles     map[model.Timeframe]int `json:"candles"` // complete candles per timeframe
	Signals     int                     `json:"signals"`
	Skipped     int                     `json:"skipped"` // signals ignored: same-direction trade active
	Summary     simulation.Summary      `json:"summary"`
	Duration    time.Duration           `json:"duration"`

	Trades []*simulation.Trade                           `json:"-"`
	Latest map[model.Timeframe]model.CandleAndIndicators `json:"-"` // last value per timeframe
}

// Session is one market's simulation. Not safe for concurrent use.
type Session struct {
	opts       Options
	runner     *runner.Runner
	engine     *indicator.Engine
	sim        *simulation.Simulator
	strategies *strategy.Engine
	log        *slog.Logger

	pending []model.SimpleCandle
	result  Result
}

// NewSession validates opts against series and builds the pipeline.
func NewSession(series runner.Series, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("run_id", opts.RunID, "market", opts.Market.Name)

	ropts := []runner.Option{runner.WithLogger(log)}
	if opts.TigerStep > 0 {
		ropts = append(ropts, runner.WithTiger(opts.TigerStep))
	}
	r, err := runner.New(series, ropts...)
	if err != nil {
		return nil, err
	}

	engine, err := indicator.NewEngine(opts.Market.Name, opts.Indicators)
	if err != nil {
		return nil, err
	}
	if err := checkStrategySlots(r.BaseTimeframe(), opts.Indicators, opts.Strategies); err != nil {
		return nil, err
	}

	s := &Session{
		opts:       opts,
		runner:     r,
		engine:     engine,
		sim:        simulation.NewSimulator(opts.Market),
		strategies: strategy.NewEngine(opts.Strategies...),
		log:        log,
		result: Result{
			RunID:   opts.RunID,
			Market:  opts.Market.Name,
			Candles: make(map[model.Timeframe]int),
		},
	}
	r.OnCandle = func(_ model.Timeframe, c model.SimpleCandle) {
		s.pending = append(s.pending, c)
	}
	return s, nil
}

func checkStrategySlots(base model.Timeframe, configs []indicator.TFIndicatorConfig, strategies []strategy.Strategy) error {
	var have [model.IndicatorSlotCount]bool
	for _, cfg := range configs {
		if cfg.TF != base {
			continue
		}
		for _, slot := range cfg.Slots {
			have[slot] = true
		}
	}
	for _, st := range strategies {
		sr, ok := st.(slotReader)
		if !ok {
			continue
		}
		for _, slot := range sr.RequiredSlots() {
			if !have[slot] {
				return fmt.Errorf("%w: %s needs %s on %s", ErrMissingIndicator, st.Name(), slot, base)
			}
		}
	}
	return nil
}

// Runner returns the session's candle runner.
func (s *Session) Runner() *runner.Runner { return s.runner }

// Engine returns the session's indicator engine.
func (s *Session) Engine() *indicator.Engine { return s.engine }

// Simulator returns the session's trade simulator.
func (s *Session) Simulator() *simulation.Simulator { return s.sim }

// Step consumes one base candle. It returns false once the base series is
// exhausted.
//
// Per base candle: active trades are matched first, so orders placed on a
// candle are only matched from the next one. Then every new or updated
// candle is run through the indicator engine and published, transitions are
// published, and finally the strategies see the complete base candle.
func (s *Session) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.pending = s.pending[:0]
	if !s.runner.ProgressOneCandle() {
		return false, nil
	}
	bc, _ := s.runner.LatestBaseCandle()
	s.result.BaseCandles++
	if s.opts.Pacer != nil {
		if err := s.opts.Pacer.Wait(ctx, bc.CloseTime); err != nil {
			return false, err
		}
	}

	transitions := s.sim.Update(bc)

	var base model.CandleAndIndicators
	for _, c := range s.pending {
		v, err := s.process(ctx, c)
		if err != nil {
			return false, err
		}
		if c.Timeframe == s.runner.BaseTimeframe() {
			base = v
		}
	}

	for _, tr := range transitions {
		if err := s.publishTransition(ctx, tr); err != nil {
			return false, err
		}
	}

	for _, sig := range s.strategies.Process(s.opts.Market.Name, base) {
		s.result.Signals++
		if s.opts.Metrics != nil {
			s.opts.Metrics.SignalsTotal.WithLabelValues(sig.StrategyName).Inc()
		}
		if s.sim.HasOpen(sig.Direction) {
			s.result.Skipped++
			s.log.Debug("signal skipped, trade already active", "strategy", sig.StrategyName, "direction", sig.Direction.String())
			continue
		}
		t, err := s.sim.Place(sig.Order())
		if err != nil {
			s.log.Warn("order rejected", "strategy", sig.StrategyName, "error", err)
			continue
		}
		s.log.Debug("order placed", "trade_id", t.ID, "direction", t.Direction.String(), "reason", sig.Reason)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.BaseCandlesTotal.WithLabelValues(s.opts.Market.Name).Inc()
		s.opts.Metrics.OpenTrades.WithLabelValues(s.opts.Market.Name).Set(float64(len(s.sim.Active())))
	}
	return true, nil
}

func (s *Session) process(ctx context.Context, c model.SimpleCandle) (model.CandleAndIndicators, error) {
	start := time.Now()
	v, ok := s.engine.Process(c)
	if !ok {
		v = model.CandleAndIndicators{Candle: c}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.IndicatorComputeDur.Observe(time.Since(start).Seconds())
		if c.IsComplete {
			s.opts.Metrics.TFCandlesTotal.WithLabelValues(c.Timeframe.String()).Inc()
		}
	}
	if c.IsComplete {
		s.result.Candles[c.Timeframe]++
	}

	for _, sink := range s.opts.Sinks {
		if err := sink.OnCandle(ctx, s.opts.Market.Name, v); err != nil {
			return v, fmt.Errorf("sink candle %s: %w", c.Timeframe, err)
		}
	}
	return v, nil
}

func (s *Session) publishTransition(ctx context.Context, tr simulation.Transition) error {
	if s.opts.Metrics != nil {
		s.opts.Metrics.TradeTransitions.WithLabelValues(tr.Kind.String()).Inc()
	}
	s.log.Debug("trade "+tr.Kind.String(), "trade_id", tr.Trade.ID, "state", tr.Trade.State().String())
	for _, sink := range s.opts.Sinks {
		if err := sink.OnTransition(ctx, s.opts.Market.Name, tr); err != nil {
			return fmt.Errorf("sink transition %s: %w", tr.Trade.ID, err)
		}
	}
	return nil
}

// Run steps until the base series is exhausted or ctx is cancelled, then
// finishes the session. On cancellation the partial result is returned
// together with ctx.Err().
func (s *Session) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	s.log.Info("session started", "base", s.runner.BaseTimeframe().String(),
		"from", model.TimeOf(s.runner.CurrentTime()), "to", model.TimeOf(s.runner.EndTime()))

	for {
		more, err := s.Step(ctx)
		if err != nil {
			s.result.Duration = time.Since(start)
			s.snapshot()
			return s.result, err
		}
		if !more {
			break
		}
	}

	if err := s.finish(ctx); err != nil {
		return s.result, err
	}
	s.result.Duration = time.Since(start)

	sum := s.result.Summary
	s.log.Info("session finished",
		"base_candles", s.result.BaseCandles,
		"signals", s.result.Signals,
		"trades", sum.Trades,
		"wins", sum.Wins,
		"losses", sum.Losses,
		"net_pips", sum.NetPips.StringFixed(1),
		"duration", s.result.Duration.String())
	return s.result, nil
}

// finish optionally closes what is still open and publishes the summary.
func (s *Session) finish(ctx context.Context) error {
	if s.opts.CloseAtEnd {
		if bc, ok := s.runner.LatestBaseCandle(); ok {
			active := append([]*simulation.Trade(nil), s.sim.Active()...)
			s.sim.CloseAll(bc.CloseTime, decimal.NewFromFloat(bc.Close), simulation.ManualClose)
			for _, t := range active {
				if err := s.publishTransition(ctx, simulation.Transition{Kind: simulation.Exited, Trade: t}); err != nil {
					return err
				}
			}
		}
	}

	s.snapshot()
	for _, sink := range s.opts.Sinks {
		ss, ok := sink.(SummarySink)
		if !ok {
			continue
		}
		if err := ss.OnSummary(ctx, s.opts.Market.Name, s.result.Summary); err != nil {
			return fmt.Errorf("sink summary: %w", err)
		}
	}
	return nil
}

func (s *Session) snapshot() {
	s.result.Summary = s.sim.Summary()
	s.result.Trades = s.sim.Trades()
	s.result.Latest = make(map[model.Timeframe]model.CandleAndIndicators)
	for _, tf := range s.runner.Timeframes() {
		if v, ok := s.engine.Latest(tf); ok {
			s.result.Latest[tf] = v
		}
	}
}
