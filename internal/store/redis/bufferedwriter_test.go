package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

type fakeWriter struct {
	mu      sync.Mutex
	fail    bool
	written []event
}

func (f *fakeWriter) writeEvents(_ context.Context, events []event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.written = append(f.written, events...)
	return nil
}

func (f *fakeWriter) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func h1Values(complete bool) model.CandleAndIndicators {
	var v model.CandleAndIndicators
	v.Candle = model.SimpleCandle{
		Timeframe:  model.H1,
		OpenTime:   0,
		CloseTime:  int64(time.Hour),
		Open:       1.1,
		High:       1.2,
		Low:        1.0,
		Close:      1.15,
		IsComplete: complete,
	}
	v.Values[model.EMA8] = model.IndicatorValue{Value: 1.12, IsFormed: true, Set: true}
	v.Values[model.RSI14] = model.IndicatorValue{Value: 55, Set: true}
	return v
}

func TestCandleEvents_CompleteCandle(t *testing.T) {
	ks := NewKeyspace("r1")
	v := h1Values(true)
	events := candleEvents(ks, "EURUSD", &v)

	// the unformed RSI of a complete candle is not published
	require.Len(t, events, 2)
	assert.Equal(t, "sim:r1:candle:H1:EURUSD", events[0].Stream)
	assert.Equal(t, "sim:r1:candle:H1:latest:EURUSD", events[0].Latest)
	assert.Equal(t, "pub:sim:r1:candle:H1:EURUSD", events[0].Channel)
	assert.Equal(t, "sim:r1:ind:EMA8:H1:EURUSD", events[1].Stream)

	var c model.SimpleCandle
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &c))
	assert.Equal(t, v.Candle, c)
}

func TestCandleEvents_FormingCandleIsLiveOnly(t *testing.T) {
	v := h1Values(false)
	events := candleEvents(NewKeyspace("r1"), "EURUSD", &v)

	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Empty(t, ev.Stream)
		assert.Empty(t, ev.Latest)
		assert.NotEmpty(t, ev.Channel)
	}
}

func TestTradeEvent(t *testing.T) {
	price := decimal.RequireFromString("1.1")
	tr, err := simulation.NewOrder(simulation.OrderParams{
		Market:     "EURUSD",
		Direction:  simulation.Long,
		OrderPrice: &price,
	})
	require.NoError(t, err)

	ev, err := tradeEvent(NewKeyspace("r1"), "EURUSD", simulation.Transition{Kind: simulation.Filled, Trade: tr})
	require.NoError(t, err)
	assert.Equal(t, "sim:r1:trades:EURUSD", ev.Stream)

	var got TradeEvent
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &got))
	assert.Equal(t, "filled", got.Kind)
	assert.Equal(t, tr.ID, got.Trade.ID)
}

func TestBufferedWriter_BuffersWhileOpenAndFlushesOnClose(t *testing.T) {
	fw := &fakeWriter{}
	cb, clock := newTestBreaker(1, time.Second)
	bw := newBufferedWriter(fw, cb, "r1", 0)
	ctx := context.Background()

	var buffered, flushed int
	var mu sync.Mutex
	bw.OnBuffer = func(n int) { mu.Lock(); buffered += n; mu.Unlock() }
	bw.OnFlush = func(n int) { mu.Lock(); flushed += n; mu.Unlock() }

	fw.setFail(true)
	require.NoError(t, bw.OnCandle(ctx, "EURUSD", h1Values(true)))
	assert.Equal(t, StateOpen, cb.CurrentState())
	assert.Equal(t, 2, bw.PendingCount())

	// rejected by the open circuit; live events are not kept
	require.NoError(t, bw.OnCandle(ctx, "EURUSD", h1Values(false)))
	assert.Equal(t, 2, bw.PendingCount())

	fw.setFail(false)
	clock.advance(time.Second)
	require.NoError(t, bw.OnCandle(ctx, "EURUSD", h1Values(true)))
	assert.Equal(t, StateClosed, cb.CurrentState())

	require.Eventually(t, func() bool { return bw.PendingCount() == 0 && fw.count() == 4 },
		time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, buffered)
	assert.Equal(t, 2, flushed)
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	fw := &fakeWriter{fail: true}
	cb, _ := newTestBreaker(100, time.Second)
	bw := newBufferedWriter(fw, cb, "r1", 3)

	for i := 0; i < 2; i++ {
		require.NoError(t, bw.OnCandle(context.Background(), "EURUSD", h1Values(true)))
	}
	assert.Equal(t, 3, bw.PendingCount())
}

func TestBufferedWriter_FailedFlushKeepsEvents(t *testing.T) {
	fw := &fakeWriter{fail: true}
	cb, _ := newTestBreaker(100, time.Second)
	bw := newBufferedWriter(fw, cb, "r1", 0)

	require.NoError(t, bw.OnCandle(context.Background(), "EURUSD", h1Values(true)))
	assert.Equal(t, 0, bw.Flush(context.Background()))
	assert.Equal(t, 2, bw.PendingCount())

	fw.setFail(false)
	assert.Equal(t, 2, bw.Flush(context.Background()))
	assert.Equal(t, 0, bw.PendingCount())
	require.NoError(t, bw.Close())
}

func TestRunOf(t *testing.T) {
	ks := NewKeyspace("abc-123")
	run, ok := RunOf(ks.TradeChannel("EURUSD"))
	require.True(t, ok)
	assert.Equal(t, "abc-123", run)

	_, ok = RunOf("candle:1s:latest:NSE:1")
	assert.False(t, ok)
}
