// Package events publishes matchmaking lifecycle events over Redis Pub/Sub
// for external observers (dashboards, bots, audit tooling). Publishing is
// best-effort and fully optional; a nil client disables it.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// Pub/Sub channel constants
const (
	EventsChannel = "colosseumrl:events"
)

// Event represents a global message published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// PlayerQueuedPayload is the payload for the "player_queued" event.
type PlayerQueuedPayload struct {
	Username string `json:"username"`
}

// PlayerDequeuedPayload is the payload for the "player_dequeued" event.
type PlayerDequeuedPayload struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// MatchCreatedPayload is the payload for the "match_created" event.
type MatchCreatedPayload struct {
	MatchID     string   `json:"match_id"`
	Environment string   `json:"environment"`
	Port        int      `json:"port"`
	Players     []string `json:"players"`
}

// MatchFinishedPayload is the payload for the "match_finished" event.
type MatchFinishedPayload struct {
	MatchID  string         `json:"match_id"`
	Status   string         `json:"status"`
	Rankings map[string]int `json:"rankings,omitempty"`
}

// Publisher emits lifecycle events. A Publisher built from a nil client is a
// safe no-op, so callers never branch on whether Redis is configured.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher wraps a Redis client. A nil client yields a disabled publisher.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish marshals the payload and publishes it on the events channel.
// Failures are logged and swallowed; the matchmaking path never depends on
// the event bus being up.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) {
	if p == nil || p.rdb == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to marshal event payload", "event", eventType, "error", err)
		return
	}
	msg, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		slog.Warn("failed to marshal event", "event", eventType, "error", err)
		return
	}
	if err := p.rdb.Publish(ctx, EventsChannel, msg).Err(); err != nil {
		slog.Warn("failed to publish event", "event", eventType, "error", err)
	}
}
