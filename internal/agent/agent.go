// Package agent implements an autonomous match client: it requests a match
// from the scheduler API, connects to the assigned match server and plays the
// game out with a pluggable move policy.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/colosseumrl/colosseumrl/internal/api/models"
	"github.com/colosseumrl/colosseumrl/pkg/proto"
)

// Policy decides the agent's next action from the latest committed frame.
// An empty string stands for "no move yet".
type Policy interface {
	Act(state *proto.MatchState, me proto.SessionState) string
}

// Outcome summarizes the agent's finished match.
type Outcome struct {
	Won    bool
	Reward float64
}

// Agent plays matches on behalf of one username.
type Agent struct {
	Name           string
	CredentialHash string
	ServerURL      string // matchmaking API base, e.g. "http://localhost:50051"
	Policy         Policy
	ThinkDelay     time.Duration

	httpClient *http.Client
}

// New creates an agent. The HTTP client carries no timeout because the match
// request is a long-poll.
func New(name, credentialHash, serverURL string, policy Policy) *Agent {
	return &Agent{
		Name:           name,
		CredentialHash: credentialHash,
		ServerURL:      serverURL,
		Policy:         policy,
		httpClient:     &http.Client{},
	}
}

// RequestMatch queues with the scheduler and blocks until a match forms.
func (a *Agent) RequestMatch(ctx context.Context) (models.MatchReply, error) {
	body, err := json.Marshal(models.MatchRequest{
		Username:       a.Name,
		CredentialHash: a.CredentialHash,
	})
	if err != nil {
		return models.MatchReply{}, fmt.Errorf("agent: marshal match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ServerURL+"/api/match", bytes.NewReader(body))
	if err != nil {
		return models.MatchReply{}, fmt.Errorf("agent: build match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return models.MatchReply{}, fmt.Errorf("agent: request match: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool              `json:"success"`
		Extras  models.MatchReply `json:"extras"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return models.MatchReply{}, fmt.Errorf("agent: decode match reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		return models.MatchReply{}, fmt.Errorf("agent: match request failed with status %d", resp.StatusCode)
	}
	return envelope.Extras, nil
}

// Play connects to the assigned match server and drives the game to its end.
func (a *Agent) Play(ctx context.Context, reply models.MatchReply) (Outcome, error) {
	url := fmt.Sprintf("ws://%s:%d/ws", reply.Host, reply.Port)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("agent: dial match server: %w", err)
	}
	defer conn.Close()

	join := proto.ClientToServerMessage{Type: proto.TypeJoin, Name: a.Name, Token: reply.AuthKey}
	if err := conn.WriteJSON(join); err != nil {
		return Outcome{}, fmt.Errorf("agent: send join: %w", err)
	}

	log := slog.With("player.name", a.Name, "match.host", reply.Host, "match.port", reply.Port)
	sentReady := false

	for {
		var frame proto.ServerToClientMessage
		if err := conn.ReadJSON(&frame); err != nil {
			return Outcome{}, fmt.Errorf("agent: read frame: %w", err)
		}
		if frame.Type == proto.TypeReject {
			return Outcome{}, fmt.Errorf("agent: rejected by match server: %s", frame.Reason)
		}
		if frame.Type != proto.TypeFrame || frame.State == nil {
			continue
		}

		me, ok := findSession(frame.Sessions, a.Name)
		if !ok {
			continue
		}

		if frame.State.Terminal {
			ack := proto.ClientToServerMessage{Type: proto.TypeAckGameOver}
			if err := conn.WriteJSON(ack); err != nil {
				log.Warn("failed to acknowledge game over", "error", err)
			}
			log.Info("game over", "winner", me.Winner, "reward", me.Reward)
			return Outcome{Won: me.Winner, Reward: me.Reward}, nil
		}

		if !frame.State.Joinable && !sentReady {
			if err := conn.WriteJSON(proto.ClientToServerMessage{Type: proto.TypeReady}); err != nil {
				return Outcome{}, fmt.Errorf("agent: send ready: %w", err)
			}
			sentReady = true
			log.Info("seated and ready", "seat", me.Seat)
		}

		if sentReady && me.Turn && !me.ActionReady {
			if a.ThinkDelay > 0 {
				time.Sleep(a.ThinkDelay)
			}
			action := a.Policy.Act(frame.State, me)
			msg := proto.ClientToServerMessage{Type: proto.TypeAction, Action: action}
			if err := conn.WriteJSON(msg); err != nil {
				return Outcome{}, fmt.Errorf("agent: send action: %w", err)
			}
			log.Debug("submitted action", "action", action, "seat", me.Seat)
		}
	}
}

func findSession(sessions []proto.SessionState, name string) (proto.SessionState, bool) {
	for _, s := range sessions {
		if s.Name == name {
			return s, true
		}
	}
	return proto.SessionState{}, false
}
