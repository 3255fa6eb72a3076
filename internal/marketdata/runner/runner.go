// Package runner steps a set of per-timeframe candle series forward in time.
//
// The lowest configured clock timeframe is the base. Every consumed base
// candle advances all other timeframes: their source candles that have
// closed by then are appended as complete, otherwise a synthetic incomplete
// candle covering the elapsed part of the period is created or extended.
// The price-step (Tiger) timeframe is derived from base candles by a
// TigerBuilder.
//
// A Runner is not safe for concurrent use.
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"tradesim/internal/model"
)

var (
	// ErrNoCandles is returned when the base timeframe has no candles.
	ErrNoCandles = errors.New("runner: no candles for base timeframe")
	// ErrOutOfOrder is returned when a source series overlaps or goes back in time.
	ErrOutOfOrder = errors.New("runner: candles out of order")
)

// Series holds the source candles of each timeframe, ordered by open time.
// Tiger candles are derived and must not be supplied.
type Series map[model.Timeframe][]model.SimpleCandle

// Option configures a Runner.
type Option func(*Runner) error

// WithTiger enables the price-step timeframe with the given step.
func WithTiger(step float64) Option {
	return func(r *Runner) error {
		tb, err := NewTigerBuilder(step)
		if err != nil {
			return err
		}
		r.tiger = tb
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) error {
		r.log = l
		return nil
	}
}

// Runner is the multi-timeframe candle aggregator.
type Runner struct {
	base model.Timeframe
	tfs  []model.Timeframe // configured, lowest first

	source  [model.TimeframeCount][]model.SimpleCandle
	cursor  [model.TimeframeCount]int
	current [model.TimeframeCount][]model.SimpleCandle

	tiger      *TigerBuilder
	latestBase model.SimpleCandle
	hasBase    bool
	log        *slog.Logger

	// OnCandle is called for every candle appended to or updated in a
	// timeframe's current list (optional).
	OnCandle func(tf model.Timeframe, c model.SimpleCandle)
}

// New creates a runner over series. The series slices are copied.
func New(series Series, opts ...Option) (*Runner, error) {
	r := &Runner{log: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	var tfs []model.Timeframe
	for tf, candles := range series {
		if !tf.IsClockBased() {
			return nil, fmt.Errorf("runner: %s candles are derived, not loaded", tf)
		}
		i := tf.Index()
		if err := checkOrder(tf, candles); err != nil {
			return nil, err
		}
		src := make([]model.SimpleCandle, len(candles))
		for j, c := range candles {
			c.Timeframe = tf
			c.IsComplete = true
			src[j] = c
		}
		r.source[i] = src
		tfs = append(tfs, tf)
	}
	if len(tfs) == 0 {
		return nil, ErrNoCandles
	}

	tfs = model.SortTimeframes(tfs)
	r.base = tfs[0]
	if len(r.source[r.base.Index()]) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCandles, r.base)
	}
	if r.tiger != nil {
		tfs = append(tfs, model.Tiger)
	}
	r.tfs = tfs

	for _, tf := range tfs[1:] {
		if tf.IsClockBased() && len(r.source[tf.Index()]) == 0 {
			r.log.Warn("timeframe has no candles, it will stay empty", "timeframe", tf.String())
		}
	}
	return r, nil
}

func checkOrder(tf model.Timeframe, candles []model.SimpleCandle) error {
	for i, c := range candles {
		if c.OpenTime >= c.CloseTime {
			return fmt.Errorf("%w: %s candle %d opens at or after its close", ErrOutOfOrder, tf, i)
		}
		if i > 0 && c.OpenTime < candles[i-1].CloseTime {
			return fmt.Errorf("%w: %s candle %d overlaps its predecessor", ErrOutOfOrder, tf, i)
		}
	}
	return nil
}

// ProgressTime consumes base candles that close at or before target and
// returns how many were consumed. With minOneCandleProgression at least one
// base candle is consumed, if any remain.
func (r *Runner) ProgressTime(target int64, minOneCandleProgression bool) int {
	bi := r.base.Index()
	src := r.source[bi]
	advanced := 0
	for r.cursor[bi] < len(src) {
		next := src[r.cursor[bi]]
		if next.CloseTime > target && !(minOneCandleProgression && advanced == 0) {
			break
		}
		r.cursor[bi]++
		r.consume(next)
		advanced++
	}
	return advanced
}

// ProgressOneCandle consumes exactly one base candle. It returns false once
// the base series is exhausted.
func (r *Runner) ProgressOneCandle() bool {
	return r.ProgressTime(math.MinInt64, true) == 1
}

func (r *Runner) consume(bc model.SimpleCandle) {
	r.latestBase = bc
	r.hasBase = true
	r.appendCandle(r.base, bc)

	for _, tf := range r.tfs[1:] {
		if tf == model.Tiger {
			r.stepTiger(bc)
			continue
		}
		r.stepTimeframe(tf, bc)
	}
}

func (r *Runner) stepTimeframe(tf model.Timeframe, bc model.SimpleCandle) {
	i := tf.Index()
	src := r.source[i]
	if len(src) == 0 {
		return
	}

	consumed := false
	for r.cursor[i] < len(src) && src[r.cursor[i]].CloseTime <= bc.CloseTime {
		if !consumed {
			r.dropIncompleteTail(i)
			consumed = true
		}
		r.appendCandle(tf, src[r.cursor[i]])
		r.cursor[i]++
	}
	if consumed {
		return
	}

	cur := r.current[i]
	if n := len(cur); n > 0 && !cur[n-1].IsComplete {
		c := &cur[n-1]
		c.CloseTime = bc.CloseTime
		c.Close = bc.Close
		c.High = math.Max(c.High, bc.High)
		c.Low = math.Min(c.Low, bc.Low)
		r.notify(tf, *c)
		return
	}

	c := model.SimpleCandle{
		Timeframe: tf,
		OpenTime:  bc.OpenTime,
		CloseTime: bc.CloseTime,
		Open:      bc.Open,
		High:      bc.High,
		Low:       bc.Low,
		Close:     bc.Close,
	}
	// Align to the period of the pending source candle when it has begun.
	if r.cursor[i] < len(src) && src[r.cursor[i]].OpenTime <= bc.OpenTime {
		c.OpenTime = src[r.cursor[i]].OpenTime
	}
	r.appendCandle(tf, c)
}

func (r *Runner) stepTiger(bc model.SimpleCandle) {
	i := model.Tiger.Index()
	r.dropIncompleteTail(i)
	r.appendCandle(model.Tiger, r.tiger.Add(bc))
}

func (r *Runner) dropIncompleteTail(i int) {
	cur := r.current[i]
	if n := len(cur); n > 0 && !cur[n-1].IsComplete {
		r.current[i] = cur[:n-1]
	}
}

func (r *Runner) appendCandle(tf model.Timeframe, c model.SimpleCandle) {
	i := tf.Index()
	r.current[i] = append(r.current[i], c)
	r.notify(tf, c)
}

func (r *Runner) notify(tf model.Timeframe, c model.SimpleCandle) {
	if r.OnCandle != nil {
		r.OnCandle(tf, c)
	}
}

// IsComplete reports whether every base candle has been consumed.
func (r *Runner) IsComplete() bool {
	bi := r.base.Index()
	return r.cursor[bi] >= len(r.source[bi])
}

// CurrentCandles returns the materialized candle list of tf. At most the
// last candle is incomplete. The slice must not be modified.
func (r *Runner) CurrentCandles(tf model.Timeframe) []model.SimpleCandle {
	return r.current[tf.Index()]
}

// LatestBaseCandle returns the most recently consumed base candle.
func (r *Runner) LatestBaseCandle() (model.SimpleCandle, bool) {
	return r.latestBase, r.hasBase
}

// CurrentTime returns the close time of the latest base candle, or the
// open time of the first one before any progress.
func (r *Runner) CurrentTime() int64 {
	if r.hasBase {
		return r.latestBase.CloseTime
	}
	return r.source[r.base.Index()][0].OpenTime
}

// EndTime returns the close time of the last base candle.
func (r *Runner) EndTime() int64 {
	src := r.source[r.base.Index()]
	return src[len(src)-1].CloseTime
}

// Consumed returns how many source candles of tf have been consumed.
func (r *Runner) Consumed(tf model.Timeframe) int { return r.cursor[tf.Index()] }

// BaseTimeframe returns the lowest configured clock timeframe.
func (r *Runner) BaseTimeframe() model.Timeframe { return r.base }

// Timeframes returns the configured timeframes, lowest first.
func (r *Runner) Timeframes() []model.Timeframe {
	return append([]model.Timeframe(nil), r.tfs...)
}
