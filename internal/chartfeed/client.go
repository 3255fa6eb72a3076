package chartfeed

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradesim/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Client is a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu      sync.RWMutex
	markets    map[string]bool          // empty: every market
	timeframes map[model.Timeframe]bool // empty: every timeframe
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}
}

// SubscribeMsg narrows what a client receives. Empty lists mean everything.
type SubscribeMsg struct {
	Type       string            `json:"type"` // "SUBSCRIBE" or "UNSUBSCRIBE"
	ReqID      string            `json:"req_id,omitempty"`
	Markets    []string          `json:"markets"`
	Timeframes []model.Timeframe `json:"timeframes"`
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued messages into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[chartfeed] client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg SubscribeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(map[string]any{"type": "error", "error": "invalid message: " + err.Error()})
			continue
		}

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.subscribe(msg.Markets, msg.Timeframes)
			c.reply(map[string]any{"type": "subscribed", "req_id": msg.ReqID})
		case "UNSUBSCRIBE":
			c.subscribe(nil, nil)
			c.reply(map[string]any{"type": "unsubscribed", "req_id": msg.ReqID})
		default:
			c.reply(map[string]any{"type": "error", "req_id": msg.ReqID, "error": "unknown type " + msg.Type})
		}
	}
}

// reply queues a control message. The hub lock guards against a concurrent
// RemoveClient closing send.
func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) subscribe(markets []string, tfs []model.Timeframe) {
	m := make(map[string]bool, len(markets))
	for _, s := range markets {
		m[s] = true
	}
	t := make(map[model.Timeframe]bool, len(tfs))
	for _, tf := range tfs {
		t[tf] = true
	}

	c.subMu.Lock()
	c.markets = m
	c.timeframes = t
	c.subMu.Unlock()
}

// matchesChannel reports whether the client should receive channel.
func (c *Client) matchesChannel(channel string) bool {
	kind, market, tf, ok := parseChannel(channel)
	if !ok {
		return true
	}

	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.markets) > 0 && !c.markets[market] {
		return false
	}
	if kind == "candle" && len(c.timeframes) > 0 && !c.timeframes[tf] {
		return false
	}
	return true
}

// parseChannel splits "candle:EURUSD:H1", "trade:EURUSD" or "summary:EURUSD".
func parseChannel(channel string) (kind, market string, tf model.Timeframe, ok bool) {
	parts := strings.Split(channel, ":")
	switch {
	case len(parts) == 3 && parts[0] == "candle":
		tf, err := model.ParseTimeframe(parts[2])
		if err != nil {
			return "", "", 0, false
		}
		return parts[0], parts[1], tf, true
	case len(parts) == 2 && (parts[0] == "trade" || parts[0] == "summary"):
		return parts[0], parts[1], 0, true
	}
	return "", "", 0, false
}
