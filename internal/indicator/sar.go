package indicator

import (
	"fmt"
	"math"

	"tradesim/internal/model"
)

// Default Parabolic SAR acceleration parameters.
const (
	SARStart = 0.02
	SARStep  = 0.02
	SARMax   = 0.2
)

// sarMinCandles is the number of committed candles before the SAR is formed.
const sarMinCandles = 3

type sarParams struct {
	start, step, max float64
}

// sarState is the full committed state of a Parabolic SAR. step is a pure
// function over it, so a forming candle is evaluated on a copy.
type sarState struct {
	count int
	long  bool
	sar   float64
	ep    float64 // extreme price of the current trend
	af    float64 // acceleration factor

	firstClose          float64
	prevHigh, prevLow   float64 // bar i-1
	prev2High, prev2Low float64 // bar i-2
}

func (s sarState) step(c model.SimpleCandle, p sarParams) sarState {
	switch s.count {
	case 0:
		s.firstClose = c.Close
		s.prevHigh, s.prevLow = c.High, c.Low
		s.sar = c.Low
	case 1:
		// Second bar picks the initial trend.
		s.long = c.Close >= s.firstClose
		if s.long {
			s.sar = math.Min(c.Low, s.prevLow)
			s.ep = math.Max(c.High, s.prevHigh)
		} else {
			s.sar = math.Max(c.High, s.prevHigh)
			s.ep = math.Min(c.Low, s.prevLow)
		}
		s.af = p.start
		s.prev2High, s.prev2Low = s.prevHigh, s.prevLow
		s.prevHigh, s.prevLow = c.High, c.Low
	default:
		next := s.sar + s.af*(s.ep-s.sar)
		if s.long {
			// SAR may not rise above the two prior lows.
			next = math.Min(next, math.Min(s.prevLow, s.prev2Low))
			if c.Low < next {
				s.long = false
				s.sar = s.ep
				s.ep = c.Low
				s.af = p.start
			} else {
				s.sar = next
				if c.High > s.ep {
					s.ep = c.High
					s.af = math.Min(s.af+p.step, p.max)
				}
			}
		} else {
			next = math.Max(next, math.Max(s.prevHigh, s.prev2High))
			if c.High > next {
				s.long = true
				s.sar = s.ep
				s.ep = c.High
				s.af = p.start
			} else {
				s.sar = next
				if c.Low < s.ep {
					s.ep = c.Low
					s.af = math.Min(s.af+p.step, p.max)
				}
			}
		}
		s.prev2High, s.prev2Low = s.prevHigh, s.prevLow
		s.prevHigh, s.prevLow = c.High, c.Low
	}
	s.count++
	return s
}

// ParabolicSAR is Wilder's stop-and-reverse trend follower.
type ParabolicSAR struct {
	params sarParams
	state  sarState
}

// NewParabolicSAR creates a SAR with the given acceleration parameters.
func NewParabolicSAR(start, step, max float64) (*ParabolicSAR, error) {
	if start <= 0 || step <= 0 || max < start {
		return nil, fmt.Errorf("PSAR(%g,%g,%g): invalid acceleration", start, step, max)
	}
	return &ParabolicSAR{params: sarParams{start: start, step: step, max: max}}, nil
}

func (p *ParabolicSAR) Name() string {
	return fmt.Sprintf("PSAR(%g,%g,%g)", p.params.start, p.params.step, p.params.max)
}

func (p *ParabolicSAR) IsFormed() bool { return p.state.count >= sarMinCandles }

func (p *ParabolicSAR) Process(c model.SimpleCandle) (float64, bool) {
	next := p.state.step(c, p.params)
	if c.IsComplete {
		p.state = next
	}
	return next.sar, p.IsFormed()
}

// IsLong reports the committed trend direction.
func (p *ParabolicSAR) IsLong() bool { return p.state.long }

func (p *ParabolicSAR) Reset() { p.state = sarState{} }
