package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/go-redis/redis/v8"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

const (
	defaultStreamMaxLen = 10000
	minStreamMaxLen     = 200
	defaultLatestTTL    = 30 * time.Minute
	defaultConnectWait  = 5 * time.Second
	pingTimeout         = 2 * time.Second
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	MaxLen    int64         // approximate stream length cap (default 10000)
	LatestTTL time.Duration // TTL of "latest" keys (default 30m)

	// ConnectWait bounds how long New retries the initial ping (default 5s).
	ConnectWait time.Duration
}

// event is one pipelined publication. A live event (Stream empty) is only
// published; a confirmed one is also appended to its stream and stored as
// the latest value.
type event struct {
	Stream  string
	Latest  string
	Channel string
	Data    string
}

// Writer publishes simulation output to Redis Streams and PubSub.
type Writer struct {
	client    *goredis.Client
	maxLen    int64
	latestTTL time.Duration
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer. The server is pinged with exponential
// backoff for up to cfg.ConnectWait.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = cfg.ConnectWait
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = defaultConnectWait
	}
	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
	notify := func(err error, next time.Duration) {
		log.Printf("[redis] ping %s failed: %v (retry in %v)", cfg.Addr, err, next.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(ping, bo, notify); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{
		client:    client,
		maxLen:    streamMaxLen(cfg.MaxLen),
		latestTTL: latestTTL(cfg.LatestTTL),
	}, nil
}

func streamMaxLen(n int64) int64 {
	if n <= 0 {
		return defaultStreamMaxLen
	}
	if n < minStreamMaxLen {
		return minStreamMaxLen
	}
	return n
}

func latestTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultLatestTTL
	}
	return d
}

// writeEvents sends all events in a single pipeline.
func (w *Writer) writeEvents(ctx context.Context, events []event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range events {
		ev := &events[i]
		if ev.Stream != "" {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: ev.Stream,
				MaxLen: w.maxLen,
				Approx: true,
				Values: map[string]interface{}{"data": ev.Data},
			})
		}
		if ev.Latest != "" {
			pipe.Set(ctx, ev.Latest, ev.Data, w.latestTTL)
		}
		pipe.Publish(ctx, ev.Channel, ev.Data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline (%d events): %w", len(events), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

// candleEvents builds the publications of one candle and its indicator
// values. Forming candles and their speculative values are published only.
func candleEvents(ks Keyspace, market string, v *model.CandleAndIndicators) []event {
	c := &v.Candle
	events := make([]event, 0, 1+model.IndicatorSlotCount)

	ev := event{
		Channel: ks.CandleChannel(market, c.Timeframe),
		Data:    string(c.JSON()),
	}
	if c.IsComplete {
		ev.Stream = ks.CandleStream(market, c.Timeframe)
		ev.Latest = ks.CandleLatest(market, c.Timeframe)
	}
	events = append(events, ev)

	for _, r := range v.Results(market) {
		if !r.IsFormed && !r.Live {
			continue
		}
		ev := event{
			Channel: ks.IndicatorChannel(r.Name, market, r.Timeframe),
			Data:    string(r.JSON()),
		}
		if !r.Live {
			ev.Stream = ks.IndicatorStream(r.Name, market, r.Timeframe)
			ev.Latest = ks.IndicatorLatest(r.Name, market, r.Timeframe)
		}
		events = append(events, ev)
	}
	return events
}

// TradeEvent is the payload published for a trade transition.
type TradeEvent struct {
	Kind  string            `json:"kind"`
	Trade *simulation.Trade `json:"trade"`
}

func tradeEvent(ks Keyspace, market string, tr simulation.Transition) (event, error) {
	b, err := json.Marshal(TradeEvent{Kind: tr.Kind.String(), Trade: tr.Trade})
	if err != nil {
		return event{}, fmt.Errorf("marshal trade %s: %w", tr.Trade.ID, err)
	}
	return event{
		Stream:  ks.TradeStream(market),
		Channel: ks.TradeChannel(market),
		Data:    string(b),
	}, nil
}
