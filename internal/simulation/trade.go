// Package simulation matches simulated orders and positions against candles.
package simulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrTradeClosed is returned when mutating a trade that is already closed.
	ErrTradeClosed = errors.New("simulation: trade is closed")
	// ErrInvalidDirection is returned for a direction other than Long or Short.
	ErrInvalidDirection = errors.New("simulation: invalid direction")
	// ErrMissingOrderPrice is returned for an expiring order without an order price.
	ErrMissingOrderPrice = errors.New("simulation: expiring order needs an order price")
	// ErrStopWrongSide is returned when the stop is on the profit side of the order price.
	ErrStopWrongSide = errors.New("simulation: stop on the wrong side of the order price")
	// ErrLimitWrongSide is returned when the limit is on the loss side of the order price.
	ErrLimitWrongSide = errors.New("simulation: limit on the wrong side of the order price")
)

// Direction is the side of a trade.
type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return fmt.Sprintf("Direction(%d)", int8(d))
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	if d != Long && d != Short {
		return nil, ErrInvalidDirection
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "long", "buy":
		*d = Long
	case "short", "sell":
		*d = Short
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, b)
	}
	return nil
}

// CloseReason says why a trade was closed.
type CloseReason string

const (
	HitStop      CloseReason = "hit stop"
	HitLimit     CloseReason = "hit limit"
	OrderExpired CloseReason = "order expired"
	ManualClose  CloseReason = "manual"
)

// PricePoint is one entry of a stop or limit history. A nil Price clears
// the level as of Time.
type PricePoint struct {
	Time  int64            `json:"time"`
	Price *decimal.Decimal `json:"price"`
}

// Trade is a simulated order and, once filled, the resulting position.
// Times are Unix nanoseconds. Optional levels are nil when unset.
type Trade struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Strategy  string          `json:"strategy,omitempty"`
	Direction Direction       `json:"direction"`
	Units     decimal.Decimal `json:"units"`

	OrderPrice      *decimal.Decimal `json:"order_price,omitempty"`
	OrderTime       int64            `json:"order_time"`
	OrderExpireTime *int64           `json:"order_expire_time,omitempty"`

	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`
	EntryTime  int64            `json:"entry_time,omitempty"`

	StopPrices  []PricePoint     `json:"stop_prices,omitempty"`
	LimitPrices []PricePoint     `json:"limit_prices,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	LimitPrice  *decimal.Decimal `json:"limit_price,omitempty"`

	ClosePrice  *decimal.Decimal `json:"close_price,omitempty"`
	CloseTime   int64            `json:"close_time,omitempty"`
	CloseReason CloseReason      `json:"close_reason,omitempty"`
}

// OrderParams describes a new order.
type OrderParams struct {
	Market     string
	Strategy   string
	Direction  Direction
	Units      decimal.Decimal  // zero means 1
	OrderPrice *decimal.Decimal // nil for a market order
	OrderTime  int64
	ExpireTime *int64
	Stop       *decimal.Decimal
	Limit      *decimal.Decimal
}

// NewOrder validates p and returns a pending trade.
func NewOrder(p OrderParams) (*Trade, error) {
	if p.Direction != Long && p.Direction != Short {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, p.Direction)
	}
	if p.ExpireTime != nil && p.OrderPrice == nil {
		return nil, ErrMissingOrderPrice
	}
	if p.OrderPrice != nil {
		side := decimal.NewFromInt(int64(p.Direction))
		if p.Stop != nil && p.Stop.Sub(*p.OrderPrice).Mul(side).Sign() >= 0 {
			return nil, fmt.Errorf("%w: %s stop %s, order %s", ErrStopWrongSide, p.Direction, p.Stop, p.OrderPrice)
		}
		if p.Limit != nil && p.Limit.Sub(*p.OrderPrice).Mul(side).Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s limit %s, order %s", ErrLimitWrongSide, p.Direction, p.Limit, p.OrderPrice)
		}
	}

	units := p.Units
	if units.IsZero() {
		units = decimal.NewFromInt(1)
	}
	t := &Trade{
		ID:              uuid.NewString(),
		Market:          p.Market,
		Strategy:        p.Strategy,
		Direction:       p.Direction,
		Units:           units,
		OrderPrice:      p.OrderPrice,
		OrderTime:       p.OrderTime,
		OrderExpireTime: p.ExpireTime,
	}
	if p.Stop != nil {
		t.StopPrices, t.StopPrice = addPricePoint(nil, p.OrderTime, p.Stop)
	}
	if p.Limit != nil {
		t.LimitPrices, t.LimitPrice = addPricePoint(nil, p.OrderTime, p.Limit)
	}
	return t, nil
}

// IsClosed reports whether the trade is closed.
func (t *Trade) IsClosed() bool { return t.ClosePrice != nil || t.CloseReason != "" }

// IsEntered reports whether the order has been filled.
func (t *Trade) IsEntered() bool { return t.EntryPrice != nil }

// AddStopPrice records a stop level change at time. A nil price clears the stop.
func (t *Trade) AddStopPrice(time int64, price *decimal.Decimal) error {
	if t.IsClosed() {
		return ErrTradeClosed
	}
	t.StopPrices, t.StopPrice = addPricePoint(t.StopPrices, time, price)
	return nil
}

// AddLimitPrice records a limit level change at time. A nil price clears the limit.
func (t *Trade) AddLimitPrice(time int64, price *decimal.Decimal) error {
	if t.IsClosed() {
		return ErrTradeClosed
	}
	t.LimitPrices, t.LimitPrice = addPricePoint(t.LimitPrices, time, price)
	return nil
}

// addPricePoint inserts after any entries with the same time, keeping the
// history sorted, and returns the level in force at the latest time.
func addPricePoint(hist []PricePoint, time int64, price *decimal.Decimal) ([]PricePoint, *decimal.Decimal) {
	if price != nil {
		p := *price
		price = &p
	}
	i := sort.Search(len(hist), func(i int) bool { return hist[i].Time > time })
	hist = append(hist, PricePoint{})
	copy(hist[i+1:], hist[i:])
	hist[i] = PricePoint{Time: time, Price: price}
	return hist, hist[len(hist)-1].Price
}

// priceAt returns the level in force at time, or nil.
func priceAt(hist []PricePoint, time int64) *decimal.Decimal {
	i := sort.Search(len(hist), func(i int) bool { return hist[i].Time > time })
	if i == 0 {
		return nil
	}
	return hist[i-1].Price
}

// StopAt returns the stop in force at time.
func (t *Trade) StopAt(time int64) *decimal.Decimal { return priceAt(t.StopPrices, time) }

// LimitAt returns the limit in force at time.
func (t *Trade) LimitAt(time int64) *decimal.Decimal { return priceAt(t.LimitPrices, time) }

// InitialStop returns the first stop level ever set.
func (t *Trade) InitialStop() *decimal.Decimal {
	for _, p := range t.StopPrices {
		if p.Price != nil {
			return p.Price
		}
	}
	return nil
}

// Close closes the trade manually. Closing an unfilled order cancels it.
func (t *Trade) Close(time int64, price decimal.Decimal, reason CloseReason) error {
	if t.IsClosed() {
		return ErrTradeClosed
	}
	if reason == "" {
		reason = ManualClose
	}
	t.close(time, price, reason)
	return nil
}

func (t *Trade) close(time int64, price decimal.Decimal, reason CloseReason) {
	t.ClosePrice = &price
	t.CloseTime = time
	t.CloseReason = reason
}

// Profit returns the realized profit in price units times units. Zero until
// the trade is closed with an entry.
func (t *Trade) Profit() decimal.Decimal {
	if t.EntryPrice == nil || t.ClosePrice == nil {
		return decimal.Zero
	}
	return t.ClosePrice.Sub(*t.EntryPrice).Mul(decimal.NewFromInt(int64(t.Direction))).Mul(t.Units)
}

// UnrealizedProfit returns the open profit at price, or zero when not open.
func (t *Trade) UnrealizedProfit(price decimal.Decimal) decimal.Decimal {
	if t.EntryPrice == nil || t.IsClosed() {
		return decimal.Zero
	}
	return price.Sub(*t.EntryPrice).Mul(decimal.NewFromInt(int64(t.Direction))).Mul(t.Units)
}

// RMultiple returns the realized profit per unit divided by the initial
// risk (entry to first stop). ok is false when either is unknown.
func (t *Trade) RMultiple() (r float64, ok bool) {
	stop := t.InitialStop()
	if t.EntryPrice == nil || t.ClosePrice == nil || stop == nil {
		return 0, false
	}
	risk := t.EntryPrice.Sub(*stop).Abs()
	if risk.IsZero() {
		return 0, false
	}
	perUnit := t.ClosePrice.Sub(*t.EntryPrice).Mul(decimal.NewFromInt(int64(t.Direction)))
	return perUnit.Div(risk).InexactFloat64(), true
}

// JSON returns the JSON-encoded trade (ignoring errors for hot-path usage).
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
