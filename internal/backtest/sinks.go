package backtest

import (
	"context"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

// TradeRecorder persists trades of a run.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, runID string, t *simulation.Trade) error
}

// JournalSink writes every trade transition to a TradeRecorder.
type JournalSink struct {
	Recorder TradeRecorder
	RunID    string
}

// OnCandle implements Sink; candles are not journaled.
func (j JournalSink) OnCandle(context.Context, string, model.CandleAndIndicators) error { return nil }

// OnTransition records the trade's new state.
func (j JournalSink) OnTransition(ctx context.Context, _ string, tr simulation.Transition) error {
	return j.Recorder.RecordTrade(ctx, j.RunID, tr.Trade)
}
