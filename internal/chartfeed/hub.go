// Package chartfeed streams simulation output to chart clients over
// WebSocket. Every message is wrapped in an envelope carrying its channel
// and per-channel sequence number so clients can detect and backfill gaps.
//
// Channels:
//
//	candle:{market}:{tf}   candle with indicator values (forming and complete)
//	trade:{market}         trade transitions
//	summary:{market}       end-of-run summary
package chartfeed

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
)

const defaultReplaySize = 500

// Hub fans envelopes out to connected clients and remembers the latest
// envelope of every channel for clients that join mid-run.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replaySize  int

	// Callbacks (optional)
	OnDrop    func()      // a slow client missed a message
	OnClients func(n int) // client count changed
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a hub keeping replaySize envelopes per channel.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replaySize:  replaySize,
	}
}

// CandleChannel names the channel of one market and timeframe.
func CandleChannel(market string, tf model.Timeframe) string {
	return "candle:" + market + ":" + tf.String()
}

// TradeChannel names the trade channel of one market.
func TradeChannel(market string) string { return "trade:" + market }

// SummaryChannel names the summary channel of one market.
func SummaryChannel(market string) string { return "summary:" + market }

// OnCandle broadcasts a candle with its indicator values.
func (h *Hub) OnCandle(_ context.Context, market string, v model.CandleAndIndicators) error {
	data, err := json.Marshal(candleMessage{
		Market:     market,
		Candle:     v.Candle,
		Indicators: v.Results(market),
	})
	if err != nil {
		return err
	}
	h.Broadcast(CandleChannel(market, v.Candle.Timeframe), data)
	return nil
}

// OnTransition broadcasts a trade state change.
func (h *Hub) OnTransition(_ context.Context, market string, tr simulation.Transition) error {
	data, err := json.Marshal(tradeMessage{Kind: tr.Kind.String(), Trade: tr.Trade})
	if err != nil {
		return err
	}
	h.Broadcast(TradeChannel(market), data)
	return nil
}

// OnSummary broadcasts the final summary of a market.
func (h *Hub) OnSummary(_ context.Context, market string, s simulation.Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	h.Broadcast(SummaryChannel(market), data)
	return nil
}

type candleMessage struct {
	Market     string                  `json:"market"`
	Candle     model.SimpleCandle      `json:"candle"`
	Indicators []model.IndicatorResult `json:"indicators"`
}

type tradeMessage struct {
	Kind  string            `json:"kind"`
	Trade *simulation.Trade `json:"trade"`
}

// Broadcast sends data on channel to every subscribed client. Slow clients
// miss messages rather than block the simulation.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := envelope(channel, data, now, seq, channelSeq, false)
	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// envelope hand-crafts {"channel":..,"data":..,"ts":..,"seq":N,"channel_seq":N}.
func envelope(channel string, data []byte, ts time.Time, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}

// HandleWS registers an upgraded connection, sends it the latest envelope
// of every channel and starts its pumps.
func (h *Hub) HandleWS(conn *websocket.Conn) {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	for channel, entry := range h.latest {
		select {
		case client.send <- envelope(channel, entry.Data, entry.TS, 0, entry.Seq, true):
		default:
		}
	}
	h.mu.Unlock()

	log.Printf("[chartfeed] client connected (%d total)", count)
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters c and closes its send channel. Safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.RemoveClient(c)
	}
}

// Latest returns the latest payload of every channel, optionally only the
// channels with the given prefix.
func (h *Hub) Latest(prefix string) map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		if strings.HasPrefix(k, prefix) {
			out[k] = v.Data
		}
	}
	return out
}

// ReplayRange returns the buffered envelopes of channel with channel_seq in
// [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Range(fromSeq, toSeq)
}

// ChannelSeq returns the current sequence number of a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
