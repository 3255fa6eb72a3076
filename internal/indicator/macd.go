package indicator

import (
	"fmt"

	"tradesim/internal/model"
)

// Standard MACD lengths.
const (
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignalLength = 9
)

// MACD is the difference between a fast and a slow EMA of the close.
// It is formed once the slow EMA is formed.
type MACD struct {
	fast recursiveMA
	slow recursiveMA
}

// NewMACD creates a MACD line with the given fast and slow lengths.
func NewMACD(fast, slow int) (*MACD, error) {
	if err := checkLength("MACD fast", fast); err != nil {
		return nil, err
	}
	if err := checkLength("MACD slow", slow); err != nil {
		return nil, err
	}
	return &MACD{
		fast: newRecursiveMA(fast, 2.0/float64(fast+1)),
		slow: newRecursiveMA(slow, 2.0/float64(slow+1)),
	}, nil
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d,%d)", m.fast.length, m.slow.length)
}

func (m *MACD) IsFormed() bool { return m.slow.formed() }

func (m *MACD) Process(c model.SimpleCandle) (float64, bool) {
	f := m.fast.process(c.Close, c.IsComplete)
	s := m.slow.process(c.Close, c.IsComplete)
	return f - s, m.IsFormed()
}

func (m *MACD) Reset() {
	m.fast.reset()
	m.slow.reset()
}

// MACDSignal is an EMA of the MACD line. The signal average only starts
// accumulating once the MACD line itself is formed.
type MACDSignal struct {
	macd   *MACD
	signal recursiveMA
}

// NewMACDSignal creates a MACD signal line.
func NewMACDSignal(fast, slow, signal int) (*MACDSignal, error) {
	macd, err := NewMACD(fast, slow)
	if err != nil {
		return nil, err
	}
	if err := checkLength("MACD signal", signal); err != nil {
		return nil, err
	}
	return &MACDSignal{
		macd:   macd,
		signal: newRecursiveMA(signal, 2.0/float64(signal+1)),
	}, nil
}

func (s *MACDSignal) Name() string {
	return fmt.Sprintf("MACD_SIGNAL(%d,%d,%d)", s.macd.fast.length, s.macd.slow.length, s.signal.length)
}

func (s *MACDSignal) IsFormed() bool { return s.signal.formed() }

func (s *MACDSignal) Process(c model.SimpleCandle) (float64, bool) {
	line, lineFormed := s.macd.Process(c)
	if !lineFormed {
		// A forming candle cannot be what forms the line, so only a
		// committed candle gets here with the line newly formed.
		return 0, false
	}
	return s.signal.process(line, c.IsComplete), s.IsFormed()
}

func (s *MACDSignal) Reset() {
	s.macd.Reset()
	s.signal.reset()
}
