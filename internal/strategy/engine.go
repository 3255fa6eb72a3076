// Package strategy provides the strategy engine for simulated trading.
//
// A Strategy receives complete base candles together with their indicator
// values and emits trading signals. The Engine manages registration and
// routes candles to every strategy.
package strategy

import (
	"github.com/shopspring/decimal"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

// Signal represents a trading signal emitted by a strategy.
type Signal struct {
	StrategyName string               `json:"strategy_name"`
	Action       Action               `json:"action"`
	Market       string               `json:"market"`
	Time         int64                `json:"time"`
	Price        float64              `json:"price"`                 // reference close
	OrderPrice   *decimal.Decimal     `json:"order_price,omitempty"` // nil = market order
	Stop         *decimal.Decimal     `json:"stop,omitempty"`
	Limit        *decimal.Decimal     `json:"limit,omitempty"`
	Expiry       *int64               `json:"expiry,omitempty"`
	Units        decimal.Decimal      `json:"units"`
	Reason       string               `json:"reason"`
	Direction    simulation.Direction `json:"direction"`
}

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Order converts the signal into order parameters.
func (s Signal) Order() simulation.OrderParams {
	return simulation.OrderParams{
		Market:     s.Market,
		Strategy:   s.StrategyName,
		Direction:  s.Direction,
		Units:      s.Units,
		OrderPrice: s.OrderPrice,
		OrderTime:  s.Time,
		ExpireTime: s.Expiry,
		Stop:       s.Stop,
		Limit:      s.Limit,
	}
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnCandle is called for each complete base candle with its indicator
	// values. Return a Signal to act, or nil to skip.
	OnCandle(market string, v model.CandleAndIndicators) *Signal
}

// Engine manages registered strategies and routes candles to them.
type Engine struct {
	strategies []Strategy
}

// NewEngine creates a new strategy engine.
func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Strategies returns the registered strategies.
func (e *Engine) Strategies() []Strategy { return e.strategies }

// Process routes a candle to all strategies and collects their signals.
// Incomplete candles are ignored.
func (e *Engine) Process(market string, v model.CandleAndIndicators) []Signal {
	if !v.Candle.IsComplete {
		return nil
	}
	var out []Signal
	for _, s := range e.strategies {
		if sig := s.OnCandle(market, v); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}
