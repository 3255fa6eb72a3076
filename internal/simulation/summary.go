package simulation

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradesim/internal/model"
)

// Summary aggregates the results of a set of trades.
type Summary struct {
	Market       string          `json:"market"`
	Trades       int             `json:"trades"` // filled trades
	Open         int             `json:"open"`
	Pending      int             `json:"pending"`
	Closed       int             `json:"closed"` // filled and closed
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	Expired      int             `json:"expired"`
	Cancelled    int             `json:"cancelled"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	NetPips      decimal.Decimal `json:"net_pips"`
	MaxDrawdown  decimal.Decimal `json:"max_drawdown"`
	WinRate      float64         `json:"win_rate"` // 0..100
	AvgRMultiple float64         `json:"avg_r_multiple"`
}

// Summarize computes a Summary over trades of market.
func Summarize(market model.Market, trades []*Trade) Summary {
	s := Summary{Market: market.Name, NetProfit: decimal.Zero, NetPips: decimal.Zero, MaxDrawdown: decimal.Zero}

	closed := make([]*Trade, 0, len(trades))
	for _, t := range trades {
		switch {
		case t.CloseReason == OrderExpired:
			s.Expired++
		case !t.IsEntered() && t.IsClosed():
			s.Cancelled++
		case !t.IsEntered():
			s.Pending++
		case !t.IsClosed():
			s.Trades++
			s.Open++
		default:
			s.Trades++
			closed = append(closed, t)
		}
	}

	// Equity curve in close order for drawdown.
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].CloseTime < closed[j].CloseTime })
	equity, peak := decimal.Zero, decimal.Zero
	var rSum float64
	var rCount int
	for _, t := range closed {
		s.Closed++
		p := t.Profit()
		switch p.Sign() {
		case 1:
			s.Wins++
		case -1:
			s.Losses++
		}
		s.NetProfit = s.NetProfit.Add(p)
		perUnit := p
		if !t.Units.IsZero() {
			perUnit = p.Div(t.Units)
		}
		s.NetPips = s.NetPips.Add(market.PriceToPips(perUnit))

		equity = equity.Add(p)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = dd
		}

		if r, ok := t.RMultiple(); ok {
			rSum += r
			rCount++
		}
	}

	if s.Closed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Closed) * 100
	}
	if rCount > 0 {
		s.AvgRMultiple = rSum / float64(rCount)
	}
	return s
}
