package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/colosseumrl/colosseumrl/pkg/proto"
)

// Transport serves one match's replicated state channel over websockets.
// Each connected client is a subscriber of the table; its messages become
// table updates.
type Transport struct {
	table    *Table
	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener
}

// NewTransport creates a transport bound to the given table.
func NewTransport(table *Table) *Transport {
	return &Transport{
		table: table,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start begins listening on the given port. Port 0 picks a free port.
func (t *Transport) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("channel: listen on port %d: %w", port, err)
	}
	t.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.handleWebSocket)
	t.srv = &http.Server{Handler: mux}

	go func() {
		if err := t.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("channel transport stopped", "error", err)
		}
	}()
	return nil
}

// Port returns the bound port.
func (t *Transport) Port() int {
	return t.ln.Addr().(*net.TCPAddr).Port
}

// Close shuts the transport down and disconnects every client.
func (t *Transport) Close(ctx context.Context) error {
	if t.srv == nil {
		return nil
	}
	return t.srv.Shutdown(ctx)
}

// handleWebSocket upgrades a connection, expects a join message first, then
// pumps client messages into the table and committed frames back out.
func (t *Transport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	var join proto.ClientToServerMessage
	if err := conn.ReadJSON(&join); err != nil || join.Type != proto.TypeJoin || join.Name == "" {
		_ = conn.WriteJSON(proto.ServerToClientMessage{Type: proto.TypeReject, Reason: "expected join message"})
		return
	}

	id := rand.Int63()
	t.table.Apply(Update{Kind: UpdateJoin, ID: id, Name: join.Name, Token: join.Token})
	slog.Info("session connected", "session.id", id, "player.name", join.Name)

	// Writer: forward committed frames until unsubscribed.
	frames := t.table.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := range frames {
			if err := conn.WriteJSON(frameToMessage(frame)); err != nil {
				return
			}
		}
	}()

	for {
		var msg proto.ClientToServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case proto.TypeAction:
			t.table.Apply(Update{Kind: UpdateAction, ID: id, Action: msg.Action})
		case proto.TypeReady:
			t.table.Apply(Update{Kind: UpdateReadyToStart, ID: id})
		case proto.TypeAckGameOver:
			t.table.Apply(Update{Kind: UpdateAckGameOver, ID: id})
		default:
			slog.Debug("ignoring unknown client message", "session.id", id, "message.type", msg.Type)
		}
	}

	t.table.Apply(Update{Kind: UpdateLeave, ID: id})
	t.table.Unsubscribe(frames)
	<-done
	slog.Info("session disconnected", "session.id", id, "player.name", join.Name)
}

func frameToMessage(frame Frame) proto.ServerToClientMessage {
	msg := proto.ServerToClientMessage{
		Type:     proto.TypeFrame,
		Sessions: make([]proto.SessionState, 0, len(frame.Sessions)),
		State: &proto.MatchState{
			Environment:      frame.State.Environment,
			Config:           frame.State.Config,
			ObservationNames: frame.State.ObservationNames,
			Joinable:         frame.State.Joinable,
			Terminal:         frame.State.Terminal,
			Winners:          frame.State.Winners,
			Snapshot:         frame.State.Snapshot,
		},
	}
	for _, row := range frame.Sessions {
		msg.Sessions = append(msg.Sessions, proto.SessionState{
			ID:              row.ID,
			Name:            row.Name,
			Seat:            row.Seat,
			ObservationPort: row.ObservationPort,
			Turn:            row.Turn,
			ActionReady:     row.ActionReady,
			ReadyToStart:    row.ReadyToStart,
			Reward:          row.Reward,
			Winner:          row.Winner,
			AckGameOver:     row.AckGameOver,
			Departed:        row.Departed,
		})
	}
	return msg
}
