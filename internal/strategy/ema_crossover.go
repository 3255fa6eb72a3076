package strategy

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

// EMACrossoverParams configures EMACrossover. Distances are ATR multiples.
type EMACrossoverParams struct {
	Fast          model.IndicatorSlot `yaml:"fast" default:"EMA8"`
	Slow          model.IndicatorSlot `yaml:"slow" default:"EMA25"`
	StopATR       float64             `yaml:"stop_atr" default:"1.5" validate:"gt=0"`
	LimitATR      float64             `yaml:"limit_atr" default:"3" validate:"gte=0"`
	EntryATR      float64             `yaml:"entry_atr" validate:"gte=0"` // 0 = market order
	ExpiryCandles int                 `yaml:"expiry_candles" default:"5" validate:"gte=0"`
	RSIFilter     bool                `yaml:"rsi_filter"`
	Units         float64             `yaml:"units" default:"1" validate:"gt=0"`
}

// EMACrossover implements an EMA crossover strategy.
//
// Buy signal: fast EMA crosses above slow EMA.
// Sell signal: fast EMA crosses below slow EMA.
//
// Stop and limit are placed ATR(14) multiples away from the reference
// price. With EntryATR > 0 the entry is a pending order that far inside the
// close, expiring after ExpiryCandles candles. The optional RSI filter
// skips buys when overbought (>70) and sells when oversold (<30).
type EMACrossover struct {
	name   string
	params EMACrossoverParams

	// Previous values for crossover detection
	prevFast float64
	prevSlow float64
	ready    bool
}

// NewEMACrossover creates a new EMA crossover strategy. The slots it reads
// (fast, slow, ATR14 and RSI14 when filtering) must be configured on the
// base timeframe.
func NewEMACrossover(p EMACrossoverParams) (*EMACrossover, error) {
	if p.Fast == p.Slow {
		return nil, fmt.Errorf("strategy: fast and slow must differ, both %s", p.Fast)
	}
	if p.StopATR <= 0 {
		return nil, fmt.Errorf("strategy: stop_atr must be positive, got %g", p.StopATR)
	}
	if p.Units <= 0 {
		p.Units = 1
	}
	return &EMACrossover{
		name:   fmt.Sprintf("EMA_Crossover(%s,%s)", p.Fast, p.Slow),
		params: p,
	}, nil
}

// RequiredSlots lists the indicator slots the strategy reads.
func (s *EMACrossover) RequiredSlots() []model.IndicatorSlot {
	slots := []model.IndicatorSlot{s.params.Fast, s.params.Slow, model.ATR14}
	if s.params.RSIFilter {
		slots = append(slots, model.RSI14)
	}
	return slots
}

func (s *EMACrossover) Name() string { return s.name }

func (s *EMACrossover) OnCandle(market string, v model.CandleAndIndicators) *Signal {
	fast, fastOK := v.Value(s.params.Fast)
	slow, slowOK := v.Value(s.params.Slow)
	if !fastOK || !slowOK {
		return nil
	}

	defer func() {
		s.prevFast = fast
		s.prevSlow = slow
		s.ready = true
	}()
	if !s.ready {
		return nil
	}

	var dir simulation.Direction
	switch {
	case s.prevFast <= s.prevSlow && fast > slow:
		dir = simulation.Long
	case s.prevFast >= s.prevSlow && fast < slow:
		dir = simulation.Short
	default:
		return nil
	}

	if s.params.RSIFilter {
		if rsi, ok := v.Value(model.RSI14); ok {
			if dir == simulation.Long && rsi > 70 {
				log.Printf("[strategy] %s %s: golden cross filtered by RSI %.1f > 70", s.name, market, rsi)
				return nil
			}
			if dir == simulation.Short && rsi < 30 {
				log.Printf("[strategy] %s %s: death cross filtered by RSI %.1f < 30", s.name, market, rsi)
				return nil
			}
		}
	}

	atr, ok := v.Value(model.ATR14)
	if !ok || atr <= 0 {
		return nil
	}
	return s.signal(market, v.Candle, dir, atr)
}

func (s *EMACrossover) signal(market string, c model.SimpleCandle, dir simulation.Direction, atr float64) *Signal {
	side := float64(dir)
	ref := c.Close

	sig := &Signal{
		StrategyName: s.name,
		Market:       market,
		Time:         c.CloseTime,
		Price:        c.Close,
		Direction:    dir,
		Units:        decimal.NewFromFloat(s.params.Units),
	}
	if dir == simulation.Long {
		sig.Action = ActionBuy
		sig.Reason = fmt.Sprintf("%s golden cross (fast > slow)", s.params.Fast)
	} else {
		sig.Action = ActionSell
		sig.Reason = fmt.Sprintf("%s death cross (fast < slow)", s.params.Fast)
	}

	if s.params.EntryATR > 0 {
		ref = c.Close - side*s.params.EntryATR*atr
		sig.OrderPrice = price(ref)
		if s.params.ExpiryCandles > 0 {
			expiry := c.CloseTime + int64(s.params.ExpiryCandles)*(c.CloseTime-c.OpenTime)
			sig.Expiry = &expiry
		}
	}
	sig.Stop = price(ref - side*s.params.StopATR*atr)
	if s.params.LimitATR > 0 {
		sig.Limit = price(ref + side*s.params.LimitATR*atr)
	}
	return sig
}

func price(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}
