// Package indicator provides streaming technical indicators over candle data.
//
// Every indicator consumes candles one at a time in chronological order.
// A complete candle commits new state. An incomplete (forming) candle yields a
// speculative value computed as if that candle closed now, and leaves the
// committed state untouched, so a forming candle may be processed any number
// of times before its complete version arrives.
package indicator

import (
	"errors"
	"fmt"

	"tradesim/internal/model"
)

// ErrInvalidLength is returned when an indicator is configured with length <= 0.
var ErrInvalidLength = errors.New("indicator: length must be positive")

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA(20)", "EMA(8)").
	Name() string

	// Process feeds a candle. For an incomplete candle the returned value is
	// speculative and no state is committed.
	Process(c model.SimpleCandle) (value float64, isFormed bool)

	// IsFormed reports whether enough complete candles have been committed.
	IsFormed() bool

	// Reset clears all accumulated state.
	Reset()
}

func checkLength(kind string, length int) error {
	if length <= 0 {
		return fmt.Errorf("%s(%d): %w", kind, length, ErrInvalidLength)
	}
	return nil
}

// withClose returns a copy of c carrying a derived value as its close price.
// Composite indicators use it to feed sub-indicators.
func withClose(c model.SimpleCandle, v float64) model.SimpleCandle {
	c.Open, c.High, c.Low, c.Close = v, v, v, v
	return c
}
