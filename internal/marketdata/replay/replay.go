// Package replay loads stored candle series for the runner and paces a
// simulation against the wall clock.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tradesim/internal/marketdata/runner"
	"tradesim/internal/model"
)

// ErrNoData is returned when none of the requested timeframes has candles.
var ErrNoData = errors.New("replay: no candles stored")

// MaxPause caps a single paced wait.
const MaxPause = 5 * time.Second

// Loader reads historical candles for a market.
type Loader struct {
	reader model.CandleReader
}

// New creates a Loader backed by a candle reader.
func New(reader model.CandleReader) *Loader {
	return &Loader{reader: reader}
}

// Load reads every timeframe of market within [from, to] (0 = unbounded)
// and returns them as runner input.
func (l *Loader) Load(ctx context.Context, market string, tfs []model.Timeframe, from, to int64) (runner.Series, error) {
	series := make(runner.Series, len(tfs))
	total := 0
	for _, tf := range tfs {
		if !tf.IsClockBased() {
			return nil, fmt.Errorf("replay: %s is not a stored timeframe", tf)
		}
		candles, err := l.reader.ReadCandles(ctx, market, tf, from, to)
		if err != nil {
			return nil, fmt.Errorf("replay: load %s %s: %w", market, tf, err)
		}
		series[tf] = model.SimpleCandles(candles)
		total += len(candles)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, market)
	}

	log.Printf("[replay] %s: loaded %d candles across %d timeframes", market, total, len(tfs))
	return series, nil
}

// Pacer slows a simulation so that simulated time passes speed times faster
// than wall time. A zero speed never waits.
type Pacer struct {
	speed   float64
	prev    int64
	started bool
	after   func(time.Duration) <-chan time.Time
}

// NewPacer creates a pacer; speed 1.0 = real time, 10.0 = 10x.
func NewPacer(speed float64) *Pacer {
	return &Pacer{speed: speed, after: time.After}
}

// Wait blocks for the scaled gap between the previous and the given
// simulated time, capped at MaxPause. It returns ctx.Err() if cancelled.
func (p *Pacer) Wait(ctx context.Context, ticks int64) error {
	prev, started := p.prev, p.started
	p.prev, p.started = ticks, true
	if p.speed <= 0 || !started || ticks <= prev {
		return ctx.Err()
	}

	pause := time.Duration(float64(ticks-prev) / p.speed)
	if pause > MaxPause {
		pause = MaxPause
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.after(pause):
		return nil
	}
}
