package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a full-precision OHLC candle. Prices are decimal so trade P&L
// derived from them does not drift.
// OpenTime and CloseTime are Unix nanoseconds ("ticks").
type Candle struct {
	Timeframe  Timeframe       `json:"timeframe"`
	OpenTime   int64           `json:"open_time"`
	CloseTime  int64           `json:"close_time"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	IsComplete bool            `json:"is_complete"`
}

// SimpleCandle is the reduced-precision candle the runner, the indicators and
// the order matcher operate on.
type SimpleCandle struct {
	Timeframe  Timeframe `json:"timeframe"`
	OpenTime   int64     `json:"open_time"`
	CloseTime  int64     `json:"close_time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	IsComplete bool      `json:"is_complete"`
}

// Simple converts to a SimpleCandle. Only price precision is lost.
func (c Candle) Simple() SimpleCandle {
	return SimpleCandle{
		Timeframe:  c.Timeframe,
		OpenTime:   c.OpenTime,
		CloseTime:  c.CloseTime,
		Open:       c.Open.InexactFloat64(),
		High:       c.High.InexactFloat64(),
		Low:        c.Low.InexactFloat64(),
		Close:      c.Close.InexactFloat64(),
		IsComplete: c.IsComplete,
	}
}

// FromSimple converts a SimpleCandle back into a full-precision Candle.
func FromSimple(s SimpleCandle) Candle {
	return Candle{
		Timeframe:  s.Timeframe,
		OpenTime:   s.OpenTime,
		CloseTime:  s.CloseTime,
		Open:       decimal.NewFromFloat(s.Open),
		High:       decimal.NewFromFloat(s.High),
		Low:        decimal.NewFromFloat(s.Low),
		Close:      decimal.NewFromFloat(s.Close),
		IsComplete: s.IsComplete,
	}
}

// SimpleCandles converts a whole series.
func SimpleCandles(candles []Candle) []SimpleCandle {
	out := make([]SimpleCandle, len(candles))
	for i, c := range candles {
		out[i] = c.Simple()
	}
	return out
}

// Valid reports whether the candle satisfies the OHLC and time invariants.
func (c SimpleCandle) Valid() bool {
	if c.OpenTime >= c.CloseTime {
		return false
	}
	if c.Low > c.High {
		return false
	}
	return c.Open >= c.Low && c.Open <= c.High && c.Close >= c.Low && c.Close <= c.High
}

// TypicalPrice returns (high + low + close) / 3.
func (c SimpleCandle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// OpenAt returns OpenTime as a UTC time.Time.
func (c SimpleCandle) OpenAt() time.Time { return TimeOf(c.OpenTime) }

// CloseAt returns CloseTime as a UTC time.Time.
func (c SimpleCandle) CloseAt() time.Time { return TimeOf(c.CloseTime) }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *SimpleCandle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// TimeOf converts ticks to a UTC time.Time.
func TimeOf(ticks int64) time.Time {
	return time.Unix(0, ticks).UTC()
}

// TicksOf converts a time.Time to ticks.
func TicksOf(t time.Time) int64 {
	return t.UnixNano()
}
