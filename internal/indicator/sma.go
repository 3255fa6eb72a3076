package indicator

import (
	"fmt"

	"tradesim/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window of closes.
// Uses a preallocated circular buffer for a zero-allocation hot path.
type SMA struct {
	length int
	buf    []float64 // preallocated circular buffer
	idx    int       // next write position, also the oldest value once full
	count  int       // committed values, capped at length
	sum    float64
}

// NewSMA creates a new SMA indicator with the given length.
func NewSMA(length int) (*SMA, error) {
	if err := checkLength("SMA", length); err != nil {
		return nil, err
	}
	return &SMA{length: length, buf: make([]float64, length)}, nil
}

func (s *SMA) Name() string   { return fmt.Sprintf("SMA(%d)", s.length) }
func (s *SMA) IsFormed() bool { return s.count >= s.length }

// Process commits a complete candle's close or previews a forming one.
// Before the window is full the value is the mean of what is available.
func (s *SMA) Process(c model.SimpleCandle) (float64, bool) {
	if !c.IsComplete {
		return s.peek(c.Close), s.IsFormed()
	}
	s.push(c.Close)
	return s.sum / float64(s.count), s.IsFormed()
}

func (s *SMA) push(price float64) {
	if s.count >= s.length {
		s.sum -= s.buf[s.idx]
	} else {
		s.count++
	}
	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.length
}

// peek returns the mean as if price were committed, without mutating state.
func (s *SMA) peek(price float64) float64 {
	if s.count < s.length {
		return (s.sum + price) / float64(s.count+1)
	}
	// Replace the oldest value (at idx) with the new price.
	return (s.sum - s.buf[s.idx] + price) / float64(s.length)
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
