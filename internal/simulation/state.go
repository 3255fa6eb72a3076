package simulation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderState is the lifecycle stage of a trade: Pending, Open or Closed.
type OrderState interface {
	isOrderState()
	fmt.Stringer
}

// Pending is an order waiting to fill. A nil Price is a market order.
type Pending struct {
	Price  *decimal.Decimal
	Expiry *int64
}

// Open is a filled position.
type Open struct {
	Entry     decimal.Decimal
	EntryTime int64
	Stop      *decimal.Decimal
	Limit     *decimal.Decimal
}

// Closed is a finished trade or cancelled order.
type Closed struct {
	Reason CloseReason
	Price  decimal.Decimal
	Time   int64
}

func (Pending) isOrderState() {}
func (Open) isOrderState()    {}
func (Closed) isOrderState()  {}

func (s Pending) String() string {
	if s.Price == nil {
		return "pending market order"
	}
	return "pending at " + s.Price.String()
}

func (s Open) String() string { return "open at " + s.Entry.String() }

func (s Closed) String() string { return fmt.Sprintf("closed (%s) at %s", s.Reason, s.Price) }

// State returns the tagged lifecycle state of the trade.
func (t *Trade) State() OrderState {
	switch {
	case t.IsClosed():
		c := Closed{Reason: t.CloseReason, Time: t.CloseTime}
		if t.ClosePrice != nil {
			c.Price = *t.ClosePrice
		}
		return c
	case t.EntryPrice != nil:
		return Open{Entry: *t.EntryPrice, EntryTime: t.EntryTime, Stop: t.StopPrice, Limit: t.LimitPrice}
	default:
		return Pending{Price: t.OrderPrice, Expiry: t.OrderExpireTime}
	}
}
