package simulation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/model"
)

// UpdateTrade advances t by one candle, the chronologically next candle of
// the lowest timeframe. It reports whether the trade changed. Fills and
// exits are clamped to the candle's range and stamped with its close time.
// An expired order is stamped with the candle's open time.
func UpdateTrade(t *Trade, c model.SimpleCandle) bool {
	switch s := t.State().(type) {
	case Closed:
		return false
	case Open:
		return updateOpen(t, s, c)
	case Pending:
		return updatePending(t, s, c)
	default:
		panic(fmt.Sprintf("simulation: unhandled order state %T", s))
	}
}

func updateOpen(t *Trade, s Open, c model.SimpleCandle) bool {
	high := decimal.NewFromFloat(c.High)
	low := decimal.NewFromFloat(c.Low)

	if s.Stop != nil {
		stop := *s.Stop
		if t.Direction == Long && low.LessThanOrEqual(stop) {
			t.close(c.CloseTime, decimal.Min(high, stop), HitStop)
			return true
		}
		if t.Direction == Short && high.GreaterThanOrEqual(stop) {
			t.close(c.CloseTime, decimal.Max(low, stop), HitStop)
			return true
		}
	}

	if s.Limit != nil {
		limit := *s.Limit
		// The limit exit is priced off the stop level, not the limit. This
		// mirrors the behaviour simulation results were produced with; the
		// limit only stands in when no stop is set.
		ref := limit
		if s.Stop != nil {
			ref = *s.Stop
		}
		if t.Direction == Long && high.GreaterThanOrEqual(limit) {
			t.close(c.CloseTime, decimal.Max(low, ref), HitLimit)
			return true
		}
		if t.Direction == Short && low.LessThanOrEqual(limit) {
			t.close(c.CloseTime, decimal.Min(high, ref), HitLimit)
			return true
		}
	}
	return false
}

func updatePending(t *Trade, s Pending, c model.SimpleCandle) bool {
	high := decimal.NewFromFloat(c.High)
	low := decimal.NewFromFloat(c.Low)

	switch {
	case s.Price == nil:
		t.fill(c.CloseTime, decimal.NewFromFloat(c.Close))
		return true
	case t.Direction == Long && low.LessThanOrEqual(*s.Price):
		t.fill(c.CloseTime, decimal.Min(high, *s.Price))
		return true
	case t.Direction == Short && high.GreaterThanOrEqual(*s.Price):
		t.fill(c.CloseTime, decimal.Max(low, *s.Price))
		return true
	}

	if s.Expiry != nil && c.CloseTime >= *s.Expiry {
		t.CloseTime = c.OpenTime
		t.CloseReason = OrderExpired
		return true
	}
	return false
}

func (t *Trade) fill(time int64, price decimal.Decimal) {
	t.EntryPrice = &price
	t.EntryTime = time
}
