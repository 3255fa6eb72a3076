package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradesim/internal/marketdata/runner"
	"tradesim/internal/model"
	"tradesim/internal/simulation"
	"tradesim/internal/strategy"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) OnCandle(ctx context.Context, market string, v model.CandleAndIndicators) error {
	return m.Called(ctx, market, v).Error(0)
}

func (m *mockSink) OnTransition(ctx context.Context, market string, tr simulation.Transition) error {
	return m.Called(ctx, market, tr).Error(0)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordTrade(ctx context.Context, runID string, t *simulation.Trade) error {
	return m.Called(ctx, runID, t).Error(0)
}

func TestSession_SinkErrorStopsRun(t *testing.T) {
	sinkErr := errors.New("disk full")
	sink := new(mockSink)
	sink.On("OnCandle", mock.Anything, "EURUSD", mock.Anything).Return(nil).Times(2)
	sink.On("OnCandle", mock.Anything, "EURUSD", mock.Anything).Return(sinkErr).Once()

	s, err := NewSession(runner.Series{model.M1: flatSeries(5, nil)}, Options{Market: eurusd, Sinks: []Sink{sink}})
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 3, res.BaseCandles)
	sink.AssertExpectations(t)
}

func TestJournalSink_ForwardsTransitions(t *testing.T) {
	rec := new(mockRecorder)
	rec.On("RecordTrade", mock.Anything, "run-m", mock.AnythingOfType("*simulation.Trade")).Return(nil).Twice()

	s, err := NewSession(runner.Series{model.M1: flatSeries(5, map[int]float64{3: 101})}, Options{
		Market:     eurusd,
		Strategies: []strategy.Strategy{&onceStrategy{openTime: 0, limit: 100.5}},
		Sinks:      []Sink{JournalSink{Recorder: rec, RunID: "run-m"}},
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	rec.AssertExpectations(t)
	assert.NoError(t, JournalSink{Recorder: rec}.OnCandle(context.Background(), "EURUSD", model.CandleAndIndicators{}))
}
