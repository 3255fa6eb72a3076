package simulation

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder(OrderParams{Direction: 0})
	assert.ErrorIs(t, err, ErrInvalidDirection)

	_, err = NewOrder(OrderParams{Direction: Long, ExpireTime: at(5)})
	assert.ErrorIs(t, err, ErrMissingOrderPrice)

	_, err = NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100"), Stop: decp("100")})
	assert.ErrorIs(t, err, ErrStopWrongSide)

	_, err = NewOrder(OrderParams{Direction: Short, OrderPrice: decp("100"), Stop: decp("95")})
	assert.ErrorIs(t, err, ErrStopWrongSide)

	_, err = NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100"), Limit: decp("99")})
	assert.ErrorIs(t, err, ErrLimitWrongSide)

	tr, err := NewOrder(OrderParams{Market: "EURUSD", Direction: Short, OrderPrice: decp("100"), Stop: decp("105"), Limit: decp("90")})
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID)
	assert.True(t, tr.Units.Equal(decimal.NewFromInt(1)))
	assert.True(t, tr.StopPrice.Equal(dec("105")))
	assert.True(t, tr.LimitPrice.Equal(dec("90")))
	assert.IsType(t, Pending{}, tr.State())
}

func TestNewOrder_CopiesLevels(t *testing.T) {
	stop := dec("90")
	tr, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100"), Stop: &stop})
	require.NoError(t, err)
	stop = dec("1")
	assert.True(t, tr.StopPrice.Equal(dec("90")))
}

func TestTrade_PriceHistoryStaysSorted(t *testing.T) {
	tr, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100"), Stop: decp("90"), OrderTime: 0})
	require.NoError(t, err)

	require.NoError(t, tr.AddStopPrice(3*minute, decp("95")))
	require.NoError(t, tr.AddStopPrice(1*minute, decp("92")))
	require.NoError(t, tr.AddStopPrice(5*minute, nil))

	var times []int64
	for _, p := range tr.StopPrices {
		times = append(times, p.Time)
	}
	assert.Equal(t, []int64{0, minute, 3 * minute, 5 * minute}, times)
	assert.Nil(t, tr.StopPrice, "latest entry clears the stop")

	assert.Nil(t, tr.StopAt(-1))
	assert.True(t, tr.StopAt(0).Equal(dec("90")))
	assert.True(t, tr.StopAt(2*minute).Equal(dec("92")))
	assert.True(t, tr.StopAt(4*minute).Equal(dec("95")))
	assert.Nil(t, tr.StopAt(6*minute))
	assert.True(t, tr.InitialStop().Equal(dec("90")))

	require.NoError(t, tr.AddLimitPrice(2*minute, decp("130")))
	assert.True(t, tr.LimitAt(2*minute).Equal(dec("130")))
	assert.Nil(t, tr.LimitAt(minute))
}

func TestTrade_NoMutationAfterClose(t *testing.T) {
	tr := openTrade(t, Long, "100", decp("90"), nil)
	require.NoError(t, tr.Close(minute, dec("105"), ManualClose))

	assert.ErrorIs(t, tr.AddStopPrice(2*minute, decp("95")), ErrTradeClosed)
	assert.ErrorIs(t, tr.AddLimitPrice(2*minute, decp("120")), ErrTradeClosed)
	assert.ErrorIs(t, tr.Close(2*minute, dec("1"), ManualClose), ErrTradeClosed)
	assert.True(t, tr.ClosePrice.Equal(dec("105")))
}

func TestTrade_ProfitAndRMultiple(t *testing.T) {
	long := openTrade(t, Long, "100", decp("90"), nil)
	long.Units = dec("2")
	assert.True(t, long.UnrealizedProfit(dec("104")).Equal(dec("8")))
	require.NoError(t, long.Close(minute, dec("120"), ManualClose))
	assert.True(t, long.Profit().Equal(dec("40")))
	r, ok := long.RMultiple()
	require.True(t, ok)
	assert.InDelta(t, 2.0, r, 1e-12)
	assert.True(t, long.UnrealizedProfit(dec("130")).IsZero(), "closed trades have no open profit")

	short := openTrade(t, Short, "100", decp("110"), nil)
	require.NoError(t, short.Close(minute, dec("105"), ManualClose))
	assert.True(t, short.Profit().Equal(dec("-5")))
	r, ok = short.RMultiple()
	require.True(t, ok)
	assert.InDelta(t, -0.5, r, 1e-12)

	pending, err := NewOrder(OrderParams{Direction: Long, OrderPrice: decp("100")})
	require.NoError(t, err)
	assert.True(t, pending.Profit().IsZero())
	_, ok = pending.RMultiple()
	assert.False(t, ok)
}

func TestTrade_JSON(t *testing.T) {
	tr := openTrade(t, Short, "1.2345", decp("1.2400"), nil)
	var m map[string]any
	require.NoError(t, json.Unmarshal(tr.JSON(), &m))
	assert.Equal(t, "short", m["direction"])
	assert.Equal(t, "1.2345", m["entry_price"])

	var back Trade
	require.NoError(t, json.Unmarshal(tr.JSON(), &back))
	assert.Equal(t, Short, back.Direction)
	assert.True(t, back.StopPrice.Equal(dec("1.24")))
	assert.IsType(t, Open{}, back.State())
}
