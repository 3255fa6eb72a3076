package indicator

import (
	"fmt"

	"tradesim/internal/model"
)

// timeframeIndicators holds live indicator instances and the value history of
// one timeframe.
type timeframeIndicators struct {
	slots      []model.IndicatorSlot
	indicators [model.IndicatorSlotCount]Indicator
	history    []model.CandleAndIndicators
}

// Engine computes the configured indicators across all timeframes of one
// market. Designed for single-goroutine usage, no locks needed.
type Engine struct {
	market string
	tfs    [model.TimeframeCount]*timeframeIndicators

	// OnValues is called after every processed candle with its indicator values.
	OnValues func(v model.CandleAndIndicators)
}

// NewEngine creates an indicator engine for one market.
func NewEngine(market string, configs []TFIndicatorConfig) (*Engine, error) {
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	e := &Engine{market: market}
	for _, cfg := range configs {
		ti, err := newTimeframeIndicators(cfg.Slots)
		if err != nil {
			return nil, fmt.Errorf("indicator engine %s %s: %w", market, cfg.TF, err)
		}
		e.tfs[cfg.TF.Index()] = ti
	}
	return e, nil
}

func newTimeframeIndicators(slots []model.IndicatorSlot) (*timeframeIndicators, error) {
	ti := &timeframeIndicators{slots: append([]model.IndicatorSlot(nil), slots...)}
	for _, slot := range slots {
		ind, err := New(slot)
		if err != nil {
			return nil, err
		}
		ti.indicators[slot] = ind
	}
	return ti, nil
}

// Market returns the market this engine computes for.
func (e *Engine) Market() string { return e.market }

// Configured reports whether tf has indicators configured.
func (e *Engine) Configured(tf model.Timeframe) bool { return e.tfs[tf.Index()] != nil }

// Process runs a candle through every indicator of its timeframe and records
// the result in that timeframe's history. A trailing incomplete entry is
// replaced by whatever candle comes next, so the history mirrors the
// runner's current-candle list. Returns false if the timeframe is not
// configured.
func (e *Engine) Process(c model.SimpleCandle) (model.CandleAndIndicators, bool) {
	ti := e.tfs[c.Timeframe.Index()]
	if ti == nil {
		return model.CandleAndIndicators{}, false
	}

	out := ti.compute(c)
	if n := len(ti.history); n > 0 && !ti.history[n-1].Candle.IsComplete {
		ti.history[n-1] = out
	} else {
		ti.history = append(ti.history, out)
	}

	if e.OnValues != nil {
		e.OnValues(out)
	}
	return out, true
}

func (ti *timeframeIndicators) compute(c model.SimpleCandle) model.CandleAndIndicators {
	out := model.CandleAndIndicators{Candle: c}
	for _, slot := range ti.slots {
		v, formed := ti.indicators[slot].Process(c)
		out.Values[slot] = model.IndicatorValue{Value: v, IsFormed: formed, Set: true}
	}
	return out
}

// History returns the indicator value stream of tf, indexed like the
// timeframe's candle list. The slice must not be modified.
func (e *Engine) History(tf model.Timeframe) []model.CandleAndIndicators {
	ti := e.tfs[tf.Index()]
	if ti == nil {
		return nil
	}
	return ti.history
}

// Latest returns the most recent values of tf.
func (e *Engine) Latest(tf model.Timeframe) (model.CandleAndIndicators, bool) {
	h := e.History(tf)
	if len(h) == 0 {
		return model.CandleAndIndicators{}, false
	}
	return h[len(h)-1], true
}

// Reset clears indicator state and history of tf.
func (e *Engine) Reset(tf model.Timeframe) {
	ti := e.tfs[tf.Index()]
	if ti == nil {
		return
	}
	for _, slot := range ti.slots {
		ti.indicators[slot].Reset()
	}
	ti.history = ti.history[:0]
}

// Recompute resets tf and re-derives its values from candles, which must be
// in chronological order with at most the last one incomplete.
func (e *Engine) Recompute(tf model.Timeframe, candles []model.SimpleCandle) error {
	if e.tfs[tf.Index()] == nil {
		return fmt.Errorf("indicator engine %s: timeframe %s not configured", e.market, tf)
	}
	e.Reset(tf)
	for i, c := range candles {
		if c.Timeframe != tf {
			return fmt.Errorf("indicator engine %s: candle %d has timeframe %s, want %s", e.market, i, c.Timeframe, tf)
		}
		if !c.IsComplete && i != len(candles)-1 {
			return fmt.Errorf("indicator engine %s %s: incomplete candle at %d is not last", e.market, tf, i)
		}
		e.Process(c)
	}
	return nil
}

// Reconfigure swaps the slot set of tf. Indicators whose slot stays
// configured keep their accumulated state. New slots are warmed up by
// replaying the recorded candle history through them only. Returns the
// number of preserved and created indicators.
func (e *Engine) Reconfigure(tf model.Timeframe, slots []model.IndicatorSlot) (preserved, created int, err error) {
	if err := ValidateConfigs([]TFIndicatorConfig{{TF: tf, Slots: slots}}); err != nil {
		return 0, 0, err
	}

	old := e.tfs[tf.Index()]
	next := &timeframeIndicators{slots: append([]model.IndicatorSlot(nil), slots...)}
	var fresh []model.IndicatorSlot
	for _, slot := range slots {
		if old != nil && old.indicators[slot] != nil {
			next.indicators[slot] = old.indicators[slot]
			preserved++
			continue
		}
		ind, err := New(slot)
		if err != nil {
			return 0, 0, err
		}
		next.indicators[slot] = ind
		fresh = append(fresh, slot)
		created++
	}

	if old != nil {
		next.history = old.history
		for i := range next.history {
			h := &next.history[i]
			for _, slot := range fresh {
				v, formed := next.indicators[slot].Process(h.Candle)
				h.Values[slot] = model.IndicatorValue{Value: v, IsFormed: formed, Set: true}
			}
			for slot := range h.Values {
				if next.indicators[slot] == nil {
					h.Values[slot] = model.IndicatorValue{}
				}
			}
		}
	}

	e.tfs[tf.Index()] = next
	return preserved, created, nil
}
