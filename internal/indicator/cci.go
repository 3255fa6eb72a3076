package indicator

import (
	"fmt"
	"math"

	"tradesim/internal/model"
)

const cciConstant = 0.015

// CCI is the Commodity Channel Index over typical prices:
// (tp - SMA(tp)) / (0.015 * mean deviation). It reports 0 until formed and
// whenever the mean deviation is zero.
type CCI struct {
	length  int
	tps     window
	scratch []float64
}

// NewCCI creates a new CCI indicator with the given length.
func NewCCI(length int) (*CCI, error) {
	if err := checkLength("CCI", length); err != nil {
		return nil, err
	}
	return &CCI{
		length:  length,
		tps:     newWindow(length),
		scratch: make([]float64, 0, length),
	}, nil
}

func (c *CCI) Name() string   { return fmt.Sprintf("CCI(%d)", c.length) }
func (c *CCI) IsFormed() bool { return c.tps.full() }

func (c *CCI) Process(candle model.SimpleCandle) (float64, bool) {
	tp := candle.TypicalPrice()
	if candle.IsComplete {
		c.tps.push(tp)
		if !c.tps.full() {
			return 0, false
		}
		c.scratch = c.scratch[:0]
		c.tps.tail(c.length, func(v float64) { c.scratch = append(c.scratch, v) })
		return cciOf(c.scratch), true
	}

	if !c.tps.full() {
		return 0, false
	}
	c.scratch = c.scratch[:0]
	c.tps.tail(c.length-1, func(v float64) { c.scratch = append(c.scratch, v) })
	c.scratch = append(c.scratch, tp)
	return cciOf(c.scratch), true
}

// cciOf computes the index of the last value in tps against the whole window.
func cciOf(tps []float64) float64 {
	n := float64(len(tps))
	mean := 0.0
	for _, v := range tps {
		mean += v
	}
	mean /= n

	md := 0.0
	for _, v := range tps {
		md += math.Abs(v - mean)
	}
	md /= n
	if md == 0 {
		return 0
	}
	return (tps[len(tps)-1] - mean) / (cciConstant * md)
}

func (c *CCI) Reset() {
	c.tps.reset()
	c.scratch = c.scratch[:0]
}
