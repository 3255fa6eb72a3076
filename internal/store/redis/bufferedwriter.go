package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

type eventWriter interface {
	writeEvents(ctx context.Context, events []event) error
}

// BufferedWriter publishes one run's candles, indicator values and trade
// transitions through a circuit breaker. While the circuit is open (or a
// pipeline fails) confirmed events are buffered locally and flushed when the
// circuit closes again. Live events are dropped: they are stale by then.
//
// Publishing is best effort. Errors are logged, never returned to the
// simulation.
type BufferedWriter struct {
	writer eventWriter
	closer func() error
	cb     *CircuitBreaker
	keys   Keyspace

	mu     sync.Mutex
	buffer []event
	maxBuf int // max buffered events before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func(count int) // called when events are buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered events
}

// NewBufferedWriter wraps w for the run identified by runID.
func NewBufferedWriter(w *Writer, cb *CircuitBreaker, runID string, maxBufferSize int) *BufferedWriter {
	bw := newBufferedWriter(w, cb, runID, maxBufferSize)
	bw.closer = w.Close
	return bw
}

func newBufferedWriter(w eventWriter, cb *CircuitBreaker, runID string, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		keys:   NewKeyspace(runID),
		buffer: make([]event, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.Flush(context.Background())
		}
	}
	return bw
}

// Keys returns the keyspace events are published under.
func (bw *BufferedWriter) Keys() Keyspace { return bw.keys }

// OnCandle publishes a candle with its indicator values.
func (bw *BufferedWriter) OnCandle(ctx context.Context, market string, v model.CandleAndIndicators) error {
	bw.publish(ctx, candleEvents(bw.keys, market, &v))
	return nil
}

// OnTransition publishes a trade state change.
func (bw *BufferedWriter) OnTransition(ctx context.Context, market string, tr simulation.Transition) error {
	ev, err := tradeEvent(bw.keys, market, tr)
	if err != nil {
		log.Printf("[redis] %v", err)
		return nil
	}
	bw.publish(ctx, []event{ev})
	return nil
}

func (bw *BufferedWriter) publish(ctx context.Context, events []event) {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeEvents(ctx, events)
	})
	if err == nil {
		return
	}
	if !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] publish failed, buffering: %v", err)
	}
	bw.bufferEvents(events)
}

func (bw *BufferedWriter) bufferEvents(events []event) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	n := 0
	for _, ev := range events {
		if ev.Stream == "" {
			continue
		}
		if len(bw.buffer) >= bw.maxBuf {
			// Buffer full, drop oldest
			bw.buffer = bw.buffer[1:]
		}
		bw.buffer = append(bw.buffer, ev)
		n++
	}
	if n > 0 && bw.OnBuffer != nil {
		bw.OnBuffer(n)
	}
}

// Flush replays all buffered events and returns how many were written.
// Events that fail again are put back at the front of the buffer.
func (bw *BufferedWriter) Flush(ctx context.Context) int {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return 0
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]event, 0, 256)
	bw.mu.Unlock()

	if err := bw.writer.writeEvents(ctx, toFlush); err != nil {
		log.Printf("[redis] flush of %d buffered events failed: %v", len(toFlush), err)
		bw.mu.Lock()
		bw.buffer = append(toFlush, bw.buffer...)
		if over := len(bw.buffer) - bw.maxBuf; over > 0 {
			bw.buffer = bw.buffer[over:]
		}
		bw.mu.Unlock()
		return 0
	}

	log.Printf("[redis] flushed %d buffered events", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
	return len(toFlush)
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close makes a last flush attempt and closes the underlying client.
func (bw *BufferedWriter) Close() error {
	bw.Flush(context.Background())
	if n := bw.PendingCount(); n > 0 {
		log.Printf("[redis] closing with %d unflushed events", n)
	}
	if bw.closer != nil {
		return bw.closer()
	}
	return nil
}
