package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IndicatorSlot is a dense enum of the indicators a candle can carry values for.
// Values are stored in a fixed array indexed by slot.
type IndicatorSlot uint8

const (
	EMA8 IndicatorSlot = iota
	EMA25
	EMA50
	SMA20
	SMMA20
	RSI14
	MACD
	MACDSignal
	ATR14
	CCI20
	ParabolicSAR
)

// IndicatorSlotCount is the size of per-candle indicator arrays.
const IndicatorSlotCount = 11

var slotNames = [IndicatorSlotCount]string{
	"EMA8", "EMA25", "EMA50", "SMA20", "SMMA20", "RSI14",
	"MACD", "MACD_SIGNAL", "ATR14", "CCI20", "PSAR",
}

func (s IndicatorSlot) String() string {
	if int(s) < IndicatorSlotCount {
		return slotNames[s]
	}
	return fmt.Sprintf("IndicatorSlot(%d)", uint8(s))
}

// ParseIndicatorSlot parses a slot name such as "EMA8" or "psar".
func ParseIndicatorSlot(s string) (IndicatorSlot, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range slotNames {
		if n == name {
			return IndicatorSlot(i), nil
		}
	}
	return 0, fmt.Errorf("unknown indicator %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s IndicatorSlot) MarshalText() ([]byte, error) {
	if int(s) >= IndicatorSlotCount {
		return nil, fmt.Errorf("unknown indicator slot %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *IndicatorSlot) UnmarshalText(b []byte) error {
	v, err := ParseIndicatorSlot(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IndicatorValue is one indicator output for one candle.
type IndicatorValue struct {
	Value    float64 `json:"value"`
	IsFormed bool    `json:"is_formed"`
	Set      bool    `json:"set"` // false when the slot is not configured
}

// CandleAndIndicators pairs a candle with the values of every configured
// indicator for it.
type CandleAndIndicators struct {
	Candle SimpleCandle                       `json:"candle"`
	Values [IndicatorSlotCount]IndicatorValue `json:"values"`
}

// Value returns the value stored for slot and whether it is formed.
func (c *CandleAndIndicators) Value(slot IndicatorSlot) (float64, bool) {
	v := c.Values[slot]
	return v.Value, v.Set && v.IsFormed
}

// IndicatorResult is a flattened view of one slot value, used by sinks.
type IndicatorResult struct {
	Name      string    `json:"name"` // e.g. "EMA8", "RSI14"
	Market    string    `json:"market"`
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  int64     `json:"open_time"`
	Value     float64   `json:"value"`
	IsFormed  bool      `json:"is_formed"`
	Live      bool      `json:"live"` // true for speculative values of a forming candle
}

// Results flattens the configured slots into IndicatorResults.
func (c *CandleAndIndicators) Results(market string) []IndicatorResult {
	out := make([]IndicatorResult, 0, IndicatorSlotCount)
	for i, v := range c.Values {
		if !v.Set {
			continue
		}
		out = append(out, IndicatorResult{
			Name:      IndicatorSlot(i).String(),
			Market:    market,
			Timeframe: c.Candle.Timeframe,
			OpenTime:  c.Candle.OpenTime,
			Value:     v.Value,
			IsFormed:  v.IsFormed,
			Live:      !c.Candle.IsComplete,
		})
	}
	return out
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
