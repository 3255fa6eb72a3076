package indicator

import (
	"fmt"

	"tradesim/internal/model"
)

// recursiveMA is the state shared by EMA and the Wilder smoothed average.
// Until length samples are seen it is the running simple average, so at
// sample n it equals SMA(n). After that: prev + (x - prev) * mult.
type recursiveMA struct {
	length  int
	mult    float64
	count   int
	sum     float64
	current float64
}

func newRecursiveMA(length int, mult float64) recursiveMA {
	return recursiveMA{length: length, mult: mult}
}

// next returns the value the average would have after x. Pure.
func (m *recursiveMA) next(x float64) float64 {
	if m.count < m.length {
		return (m.sum + x) / float64(m.count+1)
	}
	return m.current + (x-m.current)*m.mult
}

// commit applies x and returns the new value.
func (m *recursiveMA) commit(x float64) float64 {
	v := m.next(x)
	if m.count < m.length {
		m.sum += x
		m.count++
	}
	m.current = v
	return v
}

// process commits when complete is true, otherwise previews.
func (m *recursiveMA) process(x float64, complete bool) float64 {
	if complete {
		return m.commit(x)
	}
	return m.next(x)
}

func (m *recursiveMA) formed() bool { return m.count >= m.length }

func (m *recursiveMA) reset() {
	m.count = 0
	m.sum = 0
	m.current = 0
}

// EMA calculates Exponential Moving Average with multiplier 2/(n+1).
// O(1) per update, no window storage needed.
type EMA struct {
	ma recursiveMA
}

// NewEMA creates a new EMA indicator with the given length.
func NewEMA(length int) (*EMA, error) {
	if err := checkLength("EMA", length); err != nil {
		return nil, err
	}
	return &EMA{ma: newRecursiveMA(length, 2.0/float64(length+1))}, nil
}

func (e *EMA) Name() string   { return fmt.Sprintf("EMA(%d)", e.ma.length) }
func (e *EMA) IsFormed() bool { return e.ma.formed() }
func (e *EMA) Reset()         { e.ma.reset() }

func (e *EMA) Process(c model.SimpleCandle) (float64, bool) {
	return e.ma.process(c.Close, c.IsComplete), e.ma.formed()
}

// SMMA is Wilder's smoothed moving average, multiplier 1/n.
type SMMA struct {
	ma recursiveMA
}

// NewSMMA creates a new smoothed moving average with the given length.
func NewSMMA(length int) (*SMMA, error) {
	if err := checkLength("SMMA", length); err != nil {
		return nil, err
	}
	return &SMMA{ma: newRecursiveMA(length, 1.0/float64(length))}, nil
}

func (s *SMMA) Name() string   { return fmt.Sprintf("SMMA(%d)", s.ma.length) }
func (s *SMMA) IsFormed() bool { return s.ma.formed() }
func (s *SMMA) Reset()         { s.ma.reset() }

func (s *SMMA) Process(c model.SimpleCandle) (float64, bool) {
	return s.ma.process(c.Close, c.IsComplete), s.ma.formed()
}
