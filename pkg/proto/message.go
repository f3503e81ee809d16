// Package proto defines the wire messages exchanged between match servers and
// their connected clients over the replicated state channel.
package proto

import "encoding/json"

// Client message types.
const (
	TypeJoin       = "join"
	TypeAction     = "action"
	TypeReady      = "ready"
	TypeAckGameOver = "ack_game_over"
)

// Server message types.
const (
	TypeFrame       = "frame"
	TypeObservation = "observation"
	TypeReject      = "reject"
)

// ClientToServerMessage represents a message from a client to a match server.
type ClientToServerMessage struct {
	Type   string `json:"type" validate:"required"`
	Name   string `json:"name,omitempty"`
	Token  string `json:"token,omitempty"`
	Action string `json:"action,omitempty"`
}

// SessionState is one session row as seen by clients.
type SessionState struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Seat            int     `json:"seat"`
	ObservationPort int     `json:"observationPort"`
	Turn            bool    `json:"turn"`
	ActionReady     bool    `json:"actionReady"`
	ReadyToStart    bool    `json:"readyToStart"`
	Reward          float64 `json:"reward"`
	Winner          bool    `json:"winner"`
	AckGameOver     bool    `json:"ackGameOver"`
	Departed        bool    `json:"departed,omitempty"`
}

// MatchState is the server state record as seen by clients.
type MatchState struct {
	Environment      string          `json:"environment"`
	Config           json.RawMessage `json:"config,omitempty"`
	ObservationNames []string        `json:"observationNames"`
	Joinable         bool            `json:"joinable"`
	Terminal         bool            `json:"terminal"`
	Winners          []int           `json:"winners,omitempty"`
	Snapshot         []byte          `json:"snapshot,omitempty"`
}

// ServerToClientMessage represents a message from a match server to a client.
type ServerToClientMessage struct {
	Type     string         `json:"type" validate:"required"`
	Reason   string         `json:"reason,omitempty"`
	Sessions []SessionState `json:"sessions,omitempty"`
	State    *MatchState    `json:"state,omitempty"`
}

// ObservationMessage carries one seat's observation on its feed.
type ObservationMessage struct {
	Type string          `json:"type"`
	Seat int             `json:"seat"`
	Data json.RawMessage `json:"data"`
}
