package simulation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/model"
)

const minute = int64(time.Minute)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func at(i int64) *int64 {
	v := i * minute
	return &v
}

// candle i spans [i, i+1) minutes.
func candle(i int64, open, high, low, close float64) model.SimpleCandle {
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

// openTrade returns a filled trade with the given levels.
func openTrade(t *testing.T, dir Direction, entry string, stop, limit *decimal.Decimal) *Trade {
	t.Helper()
	tr, err := NewOrder(OrderParams{Market: "EURUSD", Direction: dir, OrderPrice: decp(entry), Stop: stop, Limit: limit})
	require.NoError(t, err)
	e := dec(entry)
	tr.fill(0, e)
	return tr
}

func assertClosed(t *testing.T, tr *Trade, reason CloseReason, price string) {
	t.Helper()
	st, ok := tr.State().(Closed)
	require.Truef(t, ok, "state is %s", tr.State())
	assert.Equal(t, reason, st.Reason)
	assert.Truef(t, st.Price.Equal(dec(price)), "close price %s, want %s", st.Price, price)
}

func TestUpdateTrade_LongHitsStop(t *testing.T) {
	tr := openTrade(t, Long, "100", decp("90"), decp("120"))
	require.True(t, UpdateTrade(tr, candle(1, 94, 95, 85, 88)))
	assertClosed(t, tr, HitStop, "90")
	assert.Equal(t, 2*minute, tr.CloseTime)
}

func TestUpdateTrade_LongGapThroughStopClampsToHigh(t *testing.T) {
	tr := openTrade(t, Long, "100", decp("90"), nil)
	require.True(t, UpdateTrade(tr, candle(1, 87, 88, 80, 82)))
	assertClosed(t, tr, HitStop, "88")
}

func TestUpdateTrade_ShortHitsStop(t *testing.T) {
	tr := openTrade(t, Short, "100", decp("110"), decp("80"))
	require.True(t, UpdateTrade(tr, candle(1, 106, 115, 105, 112)))
	assertClosed(t, tr, HitStop, "110")
}

func TestUpdateTrade_StopCheckedBeforeLimit(t *testing.T) {
	tr := openTrade(t, Long, "100", decp("90"), decp("120"))
	require.True(t, UpdateTrade(tr, candle(1, 100, 125, 85, 100)))
	assertClosed(t, tr, HitStop, "90")
}

// The limit exit is priced from the stop level: a long limit hit closes at
// max(low, stop), a short one at min(high, stop). Kept as is on purpose.
func TestUpdateTrade_HitLimitClosesAtStopReference(t *testing.T) {
	long := openTrade(t, Long, "100", decp("90"), decp("120"))
	require.True(t, UpdateTrade(long, candle(1, 116, 125, 115, 124)))
	assertClosed(t, long, HitLimit, "115")

	short := openTrade(t, Short, "100", decp("110"), decp("80"))
	require.True(t, UpdateTrade(short, candle(1, 84, 85, 75, 76)))
	assertClosed(t, short, HitLimit, "85")
}

func TestUpdateTrade_HitLimitWithoutStopUsesLimit(t *testing.T) {
	long := openTrade(t, Long, "100", nil, decp("120"))
	require.True(t, UpdateTrade(long, candle(1, 116, 125, 115, 124)))
	assertClosed(t, long, HitLimit, "120")

	short := openTrade(t, Short, "100", nil, decp("80"))
	require.True(t, UpdateTrade(short, candle(1, 84, 85, 75, 76)))
	assertClosed(t, short, HitLimit, "80")
}

func TestUpdateTrade_OpenNoLevelHit(t *testing.T) {
	tr := openTrade(t, Long, "100", decp("90"), decp("120"))
	assert.False(t, UpdateTrade(tr, candle(1, 100, 110, 95, 105)))
	_, ok := tr.State().(Open)
	assert.True(t, ok)
}

func TestUpdateTrade_PendingLongFillsAtOrderPrice(t *testing.T) {
	tr, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100")})
	require.NoError(t, err)

	require.True(t, UpdateTrade(tr, candle(3, 104, 105, 98, 101)))
	st, ok := tr.State().(Open)
	require.True(t, ok)
	assert.True(t, st.Entry.Equal(dec("100")), "entry %s", st.Entry)
	assert.Equal(t, 4*minute, st.EntryTime)
}

func TestUpdateTrade_PendingFillClampedToCandle(t *testing.T) {
	long, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100")})
	require.NoError(t, err)
	require.True(t, UpdateTrade(long, candle(1, 97, 99, 95, 96)))
	assert.True(t, long.EntryPrice.Equal(dec("99")))

	short, err := NewOrder(OrderParams{Direction: Short, OrderPrice: decp("100")})
	require.NoError(t, err)
	require.True(t, UpdateTrade(short, candle(1, 103, 105, 102, 104)))
	assert.True(t, short.EntryPrice.Equal(dec("102")))
}

func TestUpdateTrade_PendingNotReached(t *testing.T) {
	long, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100")})
	require.NoError(t, err)
	assert.False(t, UpdateTrade(long, candle(1, 102, 105, 101, 103)))

	short, err := NewOrder(OrderParams{Direction: Short, OrderPrice: decp("100")})
	require.NoError(t, err)
	assert.False(t, UpdateTrade(short, candle(1, 97, 99, 95, 98)))
	assert.IsType(t, Pending{}, short.State())
}

func TestUpdateTrade_MarketOrderFillsAtClose(t *testing.T) {
	tr, err := NewOrder(OrderParams{Direction: Short})
	require.NoError(t, err)
	require.True(t, UpdateTrade(tr, candle(1, 100, 101, 99, 100.5)))
	assert.True(t, tr.EntryPrice.Equal(dec("100.5")))
}

func TestUpdateTrade_OrderExpires(t *testing.T) {
	tr, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100"), ExpireTime: at(3)})
	require.NoError(t, err)

	// Closes at 2m, before expiry.
	assert.False(t, UpdateTrade(tr, candle(1, 102, 103, 101, 102)))
	// Closes at 3m, expiry reached; stamped with the candle's open time.
	require.True(t, UpdateTrade(tr, candle(2, 102, 103, 101, 102)))
	st, ok := tr.State().(Closed)
	require.True(t, ok)
	assert.Equal(t, OrderExpired, st.Reason)
	assert.Equal(t, 2*minute, st.Time)
	assert.False(t, tr.IsEntered())
}

func TestUpdateTrade_FillWinsOverExpiry(t *testing.T) {
	tr, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100"), ExpireTime: at(1)})
	require.NoError(t, err)
	require.True(t, UpdateTrade(tr, candle(5, 101, 102, 99, 101)))
	assert.IsType(t, Open{}, tr.State())
}

func TestUpdateTrade_ClosedIsNoOp(t *testing.T) {
	tr := openTrade(t, Long, "100", decp("90"), nil)
	require.NoError(t, tr.Close(minute, dec("101"), ""))
	assert.False(t, UpdateTrade(tr, candle(1, 80, 85, 70, 75)))
	assertClosed(t, tr, ManualClose, "101")
}

func TestUpdateTrade_StopMovedAfterEntry(t *testing.T) {
	tr := openTrade(t, Long, "100", decp("90"), nil)
	require.NoError(t, tr.AddStopPrice(minute, decp("99")))
	require.True(t, UpdateTrade(tr, candle(2, 100, 101, 98, 100)))
	assertClosed(t, tr, HitStop, "99")

	cleared := openTrade(t, Long, "100", decp("90"), nil)
	require.NoError(t, cleared.AddStopPrice(minute, nil))
	assert.False(t, UpdateTrade(cleared, candle(2, 90, 95, 80, 85)))
}
