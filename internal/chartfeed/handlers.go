package chartfeed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// setCORS sets CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the feed endpoints on mux:
//
//	/ws                                  WebSocket feed
//	/api/latest?prefix=candle:EURUSD     latest payload per channel
//	/api/missed?channel=..&from=N&to=M   buffered envelopes for gap backfill
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[chartfeed] ws upgrade error: %v", err)
			return
		}
		hub.HandleWS(conn)
	})

	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		writeJSON(w, http.StatusOK, hub.Latest(r.URL.Query().Get("prefix")))
	})

	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		q := r.URL.Query()
		channel := q.Get("channel")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || errFrom != nil || errTo != nil || from > to {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel, from and to are required"})
			return
		}

		envs := hub.ReplayRange(channel, from, to)
		raw := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			raw[i] = e
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"channel":     channel,
			"channel_seq": hub.ChannelSeq(channel),
			"messages":    raw,
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Server serves the feed over HTTP.
type Server struct {
	hub  *Hub
	addr string
	srv  *http.Server
}

// NewServer creates a feed server for hub.
func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	return &Server{
		hub:  hub,
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[chartfeed] listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[chartfeed] server error: %v", err)
		}
	}()
}

// Stop disconnects clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Shutdown()
	return s.srv.Shutdown(ctx)
}
