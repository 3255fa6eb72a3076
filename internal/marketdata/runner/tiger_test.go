package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/model"
)

func base(i int64, open, high, low, close float64) model.SimpleCandle {
	return model.SimpleCandle{
		Timeframe:  model.M1,
		OpenTime:   i * minute,
		CloseTime:  (i + 1) * minute,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		IsComplete: true,
	}
}

func TestTigerBuilder_CompletesOnStep(t *testing.T) {
	b, err := NewTigerBuilder(1.0)
	require.NoError(t, err)

	c := b.Add(base(0, 10, 10.4, 10, 10.3))
	assert.False(t, c.IsComplete)
	assert.Equal(t, model.Tiger, c.Timeframe)

	c = b.Add(base(1, 10.3, 10.7, 10.3, 10.6))
	assert.False(t, c.IsComplete)
	assert.Equal(t, int64(0), c.OpenTime)
	assert.Equal(t, 2*minute, c.CloseTime)
	assert.InDelta(t, 10.7, c.High, 1e-12)

	// Range reaches 11.0 - 10.0 = 1.0.
	c = b.Add(base(2, 10.6, 11.0, 10.6, 10.9))
	require.True(t, c.IsComplete)
	assert.InDelta(t, 10.0, c.Open, 1e-12)
	assert.InDelta(t, 10.9, c.Close, 1e-12)
	assert.Equal(t, 3*minute, c.CloseTime)

	// Next base candle starts a fresh tiger candle.
	c = b.Add(base(3, 10.9, 11.1, 10.8, 11.0))
	assert.False(t, c.IsComplete)
	assert.Equal(t, 3*minute, c.OpenTime)
	assert.InDelta(t, 10.9, c.Open, 1e-12)
}

func TestTigerBuilder_WideBaseCandleIsNotSplit(t *testing.T) {
	b, err := NewTigerBuilder(0.5)
	require.NoError(t, err)

	c := b.Add(base(0, 10, 12, 9, 11))
	require.True(t, c.IsComplete)
	assert.InDelta(t, 3.0, c.High-c.Low, 1e-12)

	b.Reset()
	c = b.Add(base(1, 11, 11.1, 11, 11.05))
	assert.False(t, c.IsComplete)
	assert.Equal(t, 0.5, b.Step())
}

func TestNewTigerBuilder_InvalidStep(t *testing.T) {
	_, err := NewTigerBuilder(-1)
	assert.Error(t, err)
}
