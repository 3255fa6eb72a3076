package indicator

import (
	"fmt"
	"math"

	"tradesim/internal/model"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing
// of gains and losses between consecutive committed closes.
type RSI struct {
	length    int
	gain      recursiveMA
	loss      recursiveMA
	prevClose float64
	hasPrev   bool
}

// NewRSI creates a new RSI indicator with the given length.
func NewRSI(length int) (*RSI, error) {
	if err := checkLength("RSI", length); err != nil {
		return nil, err
	}
	mult := 1.0 / float64(length)
	return &RSI{
		length: length,
		gain:   newRecursiveMA(length, mult),
		loss:   newRecursiveMA(length, mult),
	}, nil
}

func (r *RSI) Name() string   { return fmt.Sprintf("RSI(%d)", r.length) }
func (r *RSI) IsFormed() bool { return r.gain.formed() }

func (r *RSI) Process(c model.SimpleCandle) (float64, bool) {
	if !r.hasPrev {
		// No delta yet. A forming first candle leaves no trace.
		if c.IsComplete {
			r.prevClose = c.Close
			r.hasPrev = true
		}
		return 0, false
	}

	g, l := 0.0, 0.0
	if d := c.Close - r.prevClose; d > 0 {
		g = d
	} else {
		l = -d
	}

	avgGain := r.gain.process(g, c.IsComplete)
	avgLoss := r.loss.process(l, c.IsComplete)
	if c.IsComplete {
		r.prevClose = c.Close
	}
	return rsiValue(avgGain, avgLoss), r.IsFormed()
}

// rsEqualTolerance is how close gain/loss must be to 1 to count as level.
const rsEqualTolerance = 1e-9

// rsiValue maps average gain/loss to 0..100. No movement at all reports 0,
// and so does a level market (gain/loss of 1), where the formula would
// give 50.
func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 0
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	if math.Abs(rs-1) < rsEqualTolerance {
		return 0
	}
	return 100 - 100/(1+rs)
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.gain.reset()
	r.loss.reset()
	r.prevClose = 0
	r.hasPrev = false
}
