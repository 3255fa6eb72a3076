package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

func values(fast, slow, atr, rsi float64) model.CandleAndIndicators {
	var v model.CandleAndIndicators
	v.Candle = model.SimpleCandle{Timeframe: model.M5, OpenTime: 0, CloseTime: 300, Open: 100, High: 101, Low: 99, Close: 100, IsComplete: true}
	v.Values[model.EMA8] = model.IndicatorValue{Value: fast, IsFormed: true, Set: true}
	v.Values[model.EMA25] = model.IndicatorValue{Value: slow, IsFormed: true, Set: true}
	v.Values[model.ATR14] = model.IndicatorValue{Value: atr, IsFormed: true, Set: true}
	v.Values[model.RSI14] = model.IndicatorValue{Value: rsi, IsFormed: true, Set: true}
	return v
}

func defaultParams() EMACrossoverParams {
	return EMACrossoverParams{Fast: model.EMA8, Slow: model.EMA25, StopATR: 1.5, LimitATR: 3, Units: 1}
}

func TestEMACrossover_GoldenCrossMarketOrder(t *testing.T) {
	s, err := NewEMACrossover(defaultParams())
	require.NoError(t, err)

	assert.Nil(t, s.OnCandle("EURUSD", values(99, 100, 2, 50)), "first formed candle only primes")
	sig := s.OnCandle("EURUSD", values(101, 100, 2, 50))
	require.NotNil(t, sig)

	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, simulation.Long, sig.Direction)
	assert.Nil(t, sig.OrderPrice)
	assert.Nil(t, sig.Expiry)
	assert.InDelta(t, 97.0, sig.Stop.InexactFloat64(), 1e-9)
	assert.InDelta(t, 106.0, sig.Limit.InexactFloat64(), 1e-9)

	_, err = simulation.NewOrder(sig.Order())
	assert.NoError(t, err)

	assert.Nil(t, s.OnCandle("EURUSD", values(102, 100, 2, 50)), "no new cross")
}

func TestEMACrossover_DeathCrossPendingOrder(t *testing.T) {
	p := defaultParams()
	p.EntryATR = 0.5
	p.ExpiryCandles = 3
	s, err := NewEMACrossover(p)
	require.NoError(t, err)

	s.OnCandle("X", values(101, 100, 2, 50))
	sig := s.OnCandle("X", values(99, 100, 2, 50))
	require.NotNil(t, sig)

	assert.Equal(t, ActionSell, sig.Action)
	// Short entry one ATR/2 above the close, stop and limit around it.
	assert.InDelta(t, 101.0, sig.OrderPrice.InexactFloat64(), 1e-9)
	assert.InDelta(t, 104.0, sig.Stop.InexactFloat64(), 1e-9)
	assert.InDelta(t, 95.0, sig.Limit.InexactFloat64(), 1e-9)
	require.NotNil(t, sig.Expiry)
	assert.Equal(t, int64(300+3*300), *sig.Expiry)

	tr, err := simulation.NewOrder(sig.Order())
	require.NoError(t, err)
	assert.IsType(t, simulation.Pending{}, tr.State())
}

func TestEMACrossover_RSIFilter(t *testing.T) {
	p := defaultParams()
	p.RSIFilter = true
	s, err := NewEMACrossover(p)
	require.NoError(t, err)
	assert.Contains(t, s.RequiredSlots(), model.RSI14)

	s.OnCandle("X", values(99, 100, 2, 80))
	assert.Nil(t, s.OnCandle("X", values(101, 100, 2, 80)), "overbought")
	assert.Nil(t, s.OnCandle("X", values(99, 100, 2, 20)), "oversold")
	assert.NotNil(t, s.OnCandle("X", values(101, 100, 2, 50)))
}

func TestEMACrossover_UnformedValuesSkipped(t *testing.T) {
	s, err := NewEMACrossover(defaultParams())
	require.NoError(t, err)
	v := values(99, 100, 2, 50)
	v.Values[model.EMA25].IsFormed = false
	assert.Nil(t, s.OnCandle("X", v))

	s.OnCandle("X", values(99, 100, 2, 50))
	noATR := values(101, 100, 0, 50)
	assert.Nil(t, s.OnCandle("X", noATR), "no ATR, no levels")
}

func TestNewEMACrossover_Validation(t *testing.T) {
	p := defaultParams()
	p.Slow = p.Fast
	_, err := NewEMACrossover(p)
	assert.Error(t, err)

	p = defaultParams()
	p.StopATR = 0
	_, err = NewEMACrossover(p)
	assert.Error(t, err)
}

func TestEngine_RoutesCompleteCandlesOnly(t *testing.T) {
	s, err := NewEMACrossover(defaultParams())
	require.NoError(t, err)
	e := NewEngine(s)

	e.Process("X", values(99, 100, 2, 50))
	forming := values(101, 100, 2, 50)
	forming.Candle.IsComplete = false
	assert.Empty(t, e.Process("X", forming))

	sigs := e.Process("X", values(101, 100, 2, 50))
	require.Len(t, sigs, 1)
	assert.Equal(t, s.Name(), sigs[0].StrategyName)
	assert.Len(t, e.Strategies(), 1)
}
