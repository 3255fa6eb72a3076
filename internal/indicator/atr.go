package indicator

import (
	"fmt"
	"math"

	"tradesim/internal/model"
)

// TrueRange returns max(high-low, |prevClose-high|, |prevClose-low|).
func TrueRange(c model.SimpleCandle, prevClose float64) float64 {
	return math.Max(math.Abs(c.High-c.Low),
		math.Max(math.Abs(prevClose-c.High), math.Abs(prevClose-c.Low)))
}

// ATR is the Wilder smoothed average of the true range.
// The first candle has no previous close; its true range is high-low.
type ATR struct {
	ma        recursiveMA
	prevClose float64
	hasPrev   bool
}

// NewATR creates a new ATR indicator with the given length.
func NewATR(length int) (*ATR, error) {
	if err := checkLength("ATR", length); err != nil {
		return nil, err
	}
	return &ATR{ma: newRecursiveMA(length, 1.0/float64(length))}, nil
}

func (a *ATR) Name() string   { return fmt.Sprintf("ATR(%d)", a.ma.length) }
func (a *ATR) IsFormed() bool { return a.ma.formed() }

func (a *ATR) Process(c model.SimpleCandle) (float64, bool) {
	tr := c.High - c.Low
	if a.hasPrev {
		tr = TrueRange(c, a.prevClose)
	}
	v := a.ma.process(tr, c.IsComplete)
	if c.IsComplete {
		a.prevClose = c.Close
		a.hasPrev = true
	}
	return v, a.IsFormed()
}

func (a *ATR) Reset() {
	a.ma.reset()
	a.prevClose = 0
	a.hasPrev = false
}
