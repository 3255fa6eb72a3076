package simulation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/model"
)

// TransitionKind classifies a state change reported by the Simulator.
type TransitionKind uint8

const (
	Filled TransitionKind = iota
	Exited
	Expired
)

func (k TransitionKind) String() string {
	switch k {
	case Filled:
		return "filled"
	case Exited:
		return "exited"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("TransitionKind(%d)", uint8(k))
}

// Transition is one trade state change caused by a candle.
type Transition struct {
	Kind  TransitionKind
	Trade *Trade
}

// Simulator owns the trades of one market and matches them against base
// candles. Designed for single-goroutine usage, no locks needed.
type Simulator struct {
	market model.Market
	trades []*Trade
	active []*Trade // not closed, in placement order

	// OnTransition is called for every state change (optional).
	OnTransition func(tr Transition)
}

// NewSimulator creates a simulator for market.
func NewSimulator(market model.Market) *Simulator {
	return &Simulator{
		market: market,
		trades: make([]*Trade, 0, 64),
	}
}

// Market returns the simulated market.
func (s *Simulator) Market() model.Market { return s.market }

// Place creates an order and adds it. It is matched from the next candle on.
func (s *Simulator) Place(p OrderParams) (*Trade, error) {
	if p.Market == "" {
		p.Market = s.market.Name
	}
	t, err := NewOrder(p)
	if err != nil {
		return nil, err
	}
	s.Add(t)
	return t, nil
}

// Add adds an existing trade, e.g. one loaded from a journal.
func (s *Simulator) Add(t *Trade) {
	s.trades = append(s.trades, t)
	if !t.IsClosed() {
		s.active = append(s.active, t)
	}
}

// Update matches every active trade against c and returns the transitions.
func (s *Simulator) Update(c model.SimpleCandle) []Transition {
	var out []Transition
	kept := s.active[:0]
	for _, t := range s.active {
		wasEntered := t.IsEntered()
		if UpdateTrade(t, c) {
			tr := Transition{Trade: t}
			switch {
			case !wasEntered && t.IsEntered():
				tr.Kind = Filled
			case t.CloseReason == OrderExpired:
				tr.Kind = Expired
			default:
				tr.Kind = Exited
			}
			out = append(out, tr)
			if s.OnTransition != nil {
				s.OnTransition(tr)
			}
		}
		if !t.IsClosed() {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(s.active); i++ {
		s.active[i] = nil
	}
	s.active = kept
	return out
}

// CloseAll closes every active trade at price, e.g. at the end of a run.
// Unfilled orders are cancelled.
func (s *Simulator) CloseAll(time int64, price decimal.Decimal, reason CloseReason) int {
	n := 0
	for _, t := range s.active {
		if err := t.Close(time, price, reason); err == nil {
			n++
		}
	}
	s.active = s.active[:0]
	return n
}

// Trades returns all trades in placement order. The slice must not be modified.
func (s *Simulator) Trades() []*Trade { return s.trades }

// Active returns the trades that are pending or open.
func (s *Simulator) Active() []*Trade { return s.active }

// HasOpen reports whether any trade of direction d is pending or open.
func (s *Simulator) HasOpen(d Direction) bool {
	for _, t := range s.active {
		if t.Direction == d {
			return true
		}
	}
	return false
}

// Unrealized returns the open profit of all filled, unclosed trades at price.
func (s *Simulator) Unrealized(price decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.active {
		total = total.Add(t.UnrealizedProfit(price))
	}
	return total
}

// Summary summarizes the trades so far.
func (s *Simulator) Summary() Summary { return Summarize(s.market, s.trades) }
