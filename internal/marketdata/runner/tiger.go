package runner

import (
	"fmt"
	"math"

	"tradesim/internal/model"
)

// tigerState is the forming price-step candle, if any.
type tigerState struct {
	open   bool
	candle model.SimpleCandle
}

// step folds a base candle into the state and returns the new state along
// with the tiger candle as it stands afterwards.
func (s tigerState) step(bc model.SimpleCandle, size float64) (tigerState, model.SimpleCandle) {
	if !s.open {
		s.open = true
		s.candle = model.SimpleCandle{
			Timeframe: model.Tiger,
			OpenTime:  bc.OpenTime,
			CloseTime: bc.CloseTime,
			Open:      bc.Open,
			High:      bc.High,
			Low:       bc.Low,
			Close:     bc.Close,
		}
	} else {
		c := &s.candle
		c.CloseTime = bc.CloseTime
		c.Close = bc.Close
		c.High = math.Max(c.High, bc.High)
		c.Low = math.Min(c.Low, bc.Low)
	}

	// Base candles are never split, so a candle completes on the base
	// candle that carries its range to the step.
	if s.candle.High-s.candle.Low >= size {
		s.candle.IsComplete = true
		s.open = false
	}
	return s, s.candle
}

// TigerBuilder builds price-step candles. A tiger candle opens with the first
// base candle after the previous one completed and completes once its
// high-low range reaches the step.
type TigerBuilder struct {
	size  float64
	state tigerState
}

// NewTigerBuilder creates a builder for the given price step.
func NewTigerBuilder(step float64) (*TigerBuilder, error) {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("runner: tiger step must be positive, got %g", step)
	}
	return &TigerBuilder{size: step}, nil
}

// Add folds a base candle in and returns the current tiger candle. The
// result is complete if this base candle completed it.
func (b *TigerBuilder) Add(bc model.SimpleCandle) model.SimpleCandle {
	var c model.SimpleCandle
	b.state, c = b.state.step(bc, b.size)
	return c
}

// Step returns the configured price step.
func (b *TigerBuilder) Step() float64 { return b.size }

// Reset discards the forming candle.
func (b *TigerBuilder) Reset() { b.state = tigerState{} }
