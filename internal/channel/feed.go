package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/colosseumrl/colosseumrl/pkg/proto"
)

// Feed broadcasts one seat's observations on its own dynamically assigned
// port. The port is announced in the session row once the seat is finalized.
type Feed struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	last  []byte
}

// NewFeed opens a feed on a free port and starts serving.
func NewFeed() (*Feed, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("channel: open observation feed: %w", err)
	}
	f := &Feed{
		ln:    ln,
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWebSocket)
	f.srv = &http.Server{Handler: mux}
	go func() {
		if err := f.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observation feed stopped", "error", err)
		}
	}()
	return f, nil
}

// Port returns the feed's bound port.
func (f *Feed) Port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

// Publish broadcasts an observation to every subscriber. The latest
// observation is replayed to clients that connect afterwards.
func (f *Feed) Publish(seat int, observation any) error {
	data, err := json.Marshal(observation)
	if err != nil {
		return fmt.Errorf("channel: marshal observation: %w", err)
	}
	payload, err := json.Marshal(proto.ObservationMessage{
		Type: proto.TypeObservation,
		Seat: seat,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("channel: marshal observation message: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = payload
	for conn := range f.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(f.conns, conn)
		}
	}
	return nil
}

// Close stops the feed and drops every subscriber.
func (f *Feed) Close(ctx context.Context) error {
	f.mu.Lock()
	for conn := range f.conns {
		conn.Close()
	}
	f.conns = make(map[*websocket.Conn]struct{})
	f.mu.Unlock()
	return f.srv.Shutdown(ctx)
}

func (f *Feed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade observation feed connection", "error", err)
		return
	}

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	last := f.last
	f.mu.Unlock()

	if last != nil {
		if err := conn.WriteMessage(websocket.TextMessage, last); err != nil {
			f.mu.Lock()
			delete(f.conns, conn)
			f.mu.Unlock()
			conn.Close()
			return
		}
	}

	// Feeds are one-way; the read loop only detects disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.mu.Lock()
				delete(f.conns, conn)
				f.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}
