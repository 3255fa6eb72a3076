package indicator

import (
	"errors"
	"testing"

	"tradesim/internal/model"
)

func newTestEngine(t *testing.T, slots ...model.IndicatorSlot) *Engine {
	t.Helper()
	e, err := NewEngine("EURUSD", []TFIndicatorConfig{{TF: model.M1, Slots: slots}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngine_RejectsBadConfig(t *testing.T) {
	_, err := NewEngine("X", []TFIndicatorConfig{
		{TF: model.M1, Slots: []model.IndicatorSlot{model.EMA8}},
		{TF: model.M1, Slots: []model.IndicatorSlot{model.SMA20}},
	})
	if err == nil {
		t.Error("expected duplicate timeframe error")
	}

	_, err = NewEngine("X", []TFIndicatorConfig{{TF: model.M5, Slots: []model.IndicatorSlot{model.EMA8, model.EMA8}}})
	if err == nil {
		t.Error("expected duplicate slot error")
	}

	_, err = NewEngine("X", []TFIndicatorConfig{{TF: model.M5, Slots: []model.IndicatorSlot{model.IndicatorSlot(99)}}})
	if !errors.Is(err, ErrUnknownIndicator) {
		t.Errorf("got %v, want ErrUnknownIndicator", err)
	}
}

func TestEngine_SMA20(t *testing.T) {
	e := newTestEngine(t, model.SMA20)

	for i := 0; i < 25; i++ {
		out, ok := e.Process(bar(100))
		if !ok {
			t.Fatalf("candle %d: timeframe not configured", i)
		}
		v := out.Values[model.SMA20]
		if !v.Set {
			t.Fatalf("candle %d: SMA20 not set", i)
		}
		if v.IsFormed != (i >= 19) {
			t.Errorf("candle %d: IsFormed=%v", i, v.IsFormed)
		}
		assertClose(t, "SMA20", v.Value, 100, 1e-9)
		if out.Values[model.EMA8].Set {
			t.Errorf("candle %d: unconfigured slot EMA8 is set", i)
		}
	}
	if n := len(e.History(model.M1)); n != 25 {
		t.Errorf("history length %d, want 25", n)
	}
}

func TestEngine_UnconfiguredTimeframe(t *testing.T) {
	e := newTestEngine(t, model.EMA8)
	c := bar(100)
	c.Timeframe = model.H1
	if _, ok := e.Process(c); ok {
		t.Error("expected H1 to be skipped")
	}
	if e.History(model.H1) != nil {
		t.Error("expected no H1 history")
	}
	if e.Configured(model.H1) || !e.Configured(model.M1) {
		t.Error("Configured mismatch")
	}
}

func TestEngine_FormingCandleReplacedInPlace(t *testing.T) {
	e := newTestEngine(t, model.SMA20, model.RSI14)
	candles := series(30)

	for _, c := range candles[:10] {
		e.Process(c)
	}
	next := candles[10]
	for _, cl := range []float64{next.Low, next.High, next.Close} {
		f := forming(next)
		f.Close = cl
		e.Process(f)
		if n := len(e.History(model.M1)); n != 11 {
			t.Fatalf("forming: history length %d, want 11", n)
		}
		latest, _ := e.Latest(model.M1)
		if latest.Candle.IsComplete {
			t.Fatal("forming: latest should be incomplete")
		}
	}
	e.Process(next)
	h := e.History(model.M1)
	if len(h) != 11 || !h[10].Candle.IsComplete {
		t.Fatalf("after complete: len=%d complete=%v", len(h), h[len(h)-1].Candle.IsComplete)
	}

	ref := newTestEngine(t, model.SMA20, model.RSI14)
	for _, c := range candles[:11] {
		ref.Process(c)
	}
	want, _ := ref.Latest(model.M1)
	for _, slot := range []model.IndicatorSlot{model.SMA20, model.RSI14} {
		assertClose(t, slot.String(), h[10].Values[slot].Value, want.Values[slot].Value, 1e-12)
	}
}

func TestEngine_RecomputeMatchesStreaming(t *testing.T) {
	all := []model.IndicatorSlot{model.EMA8, model.CCI20, model.ParabolicSAR, model.MACD}
	e := newTestEngine(t, all...)
	candles := series(60)
	for _, c := range candles {
		e.Process(c)
	}
	streamed := append([]model.CandleAndIndicators(nil), e.History(model.M1)...)

	if err := e.Recompute(model.M1, candles); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	got := e.History(model.M1)
	if len(got) != len(streamed) {
		t.Fatalf("len %d, want %d", len(got), len(streamed))
	}
	for i := range got {
		if got[i] != streamed[i] {
			t.Fatalf("candle %d differs after recompute", i)
		}
	}

	bad := append([]model.SimpleCandle{forming(candles[0])}, candles[1:]...)
	if err := e.Recompute(model.M1, bad); err == nil {
		t.Error("expected error for incomplete candle before the tail")
	}
	if err := e.Recompute(model.H4, candles); err == nil {
		t.Error("expected error for unconfigured timeframe")
	}
}

func TestEngine_ReconfigurePreservesAndBackfills(t *testing.T) {
	e := newTestEngine(t, model.EMA8, model.SMA20)
	candles := series(40)
	for _, c := range candles {
		e.Process(c)
	}

	preserved, created, err := e.Reconfigure(model.M1, []model.IndicatorSlot{model.EMA8, model.ATR14})
	if err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if preserved != 1 || created != 1 {
		t.Errorf("preserved=%d created=%d, want 1/1", preserved, created)
	}

	ref := newTestEngine(t, model.EMA8, model.ATR14)
	for _, c := range candles {
		ref.Process(c)
	}
	got, want := e.History(model.M1), ref.History(model.M1)
	for i := range want {
		if got[i].Values[model.SMA20].Set {
			t.Fatalf("candle %d: dropped slot SMA20 still set", i)
		}
		assertClose(t, "ATR14 backfill", got[i].Values[model.ATR14].Value, want[i].Values[model.ATR14].Value, 1e-12)
	}

	// Both engines keep streaming identically.
	next := candles[len(candles)-1]
	next.OpenTime += 60
	next.CloseTime += 60
	a, _ := e.Process(next)
	b, _ := ref.Process(next)
	if a != b {
		t.Error("reconfigured engine diverged from reference")
	}
}

func TestEngine_OnValuesHook(t *testing.T) {
	e := newTestEngine(t, model.EMA8)
	var calls int
	e.OnValues = func(v model.CandleAndIndicators) {
		calls++
		if !v.Values[model.EMA8].Set {
			t.Error("hook received unset EMA8")
		}
	}
	for _, c := range series(5) {
		e.Process(c)
	}
	if calls != 5 {
		t.Errorf("hook called %d times, want 5", calls)
	}
}

func TestEngine_Reset(t *testing.T) {
	e := newTestEngine(t, model.EMA8)
	for _, c := range series(10) {
		e.Process(c)
	}
	e.Reset(model.M1)
	if len(e.History(model.M1)) != 0 {
		t.Error("history not cleared")
	}
	if _, ok := e.Latest(model.M1); ok {
		t.Error("Latest after Reset should be empty")
	}
}
