// Package channel implements the replicated state channel between a match
// server and its clients: a versioned row table with pull/checkout/commit/push
// semantics, a websocket transport, and per-seat observation feeds.
package channel

import (
	"encoding/json"
	"sync"
)

// SessionRow is the server-side record of one connected player. Clients own
// Action and the acknowledgement flags; everything else is written only by
// the match server.
type SessionRow struct {
	ID              int64
	Name            string
	Token           string
	Seat            int // -1 until assigned
	ObservationPort int
	Action          string
	Turn            bool
	ActionReady     bool
	ReadyToStart    bool
	Reward          float64
	Winner          bool
	AckGameOver     bool
	Departed        bool
}

// StateRow is the per-match server state record, owned exclusively by the
// match server and read-only to clients.
type StateRow struct {
	Environment      string
	Config           json.RawMessage
	ObservationNames []string
	Joinable         bool
	Terminal         bool
	Winners          []int
	Snapshot         []byte
}

// UpdateKind enumerates client-originated mutations.
type UpdateKind int

const (
	UpdateJoin UpdateKind = iota
	UpdateLeave
	UpdateAction
	UpdateReadyToStart
	UpdateAckGameOver
)

// Update is one client-originated mutation waiting to be pulled and checked
// out by the table owner.
type Update struct {
	Kind   UpdateKind
	ID     int64
	Name   string
	Token  string
	Action string
}

// Frame is a committed, immutable snapshot of the table, broadcast to
// subscribers on Push.
type Frame struct {
	Sessions []SessionRow
	State    StateRow
}

// Table is the authoritative row store for one match. The match server owns
// it: only the owner goroutine calls Pull/Checkout/Commit/Push and mutates
// rows directly. Remote mutations enter through Apply and become visible only
// after a Checkout.
type Table struct {
	mu      sync.Mutex
	state   StateRow
	rows    map[int64]*SessionRow
	order   []int64
	queue   []Update // applied by transport, awaiting Pull
	inbox   []Update // pulled, awaiting Checkout
	staged  *Frame
	updates chan struct{}
	subs    map[chan Frame]struct{}
}

// NewTable creates a table seeded with the match's state record.
func NewTable(state StateRow) *Table {
	return &Table{
		state:   state,
		rows:    make(map[int64]*SessionRow),
		updates: make(chan struct{}, 1),
		subs:    make(map[chan Frame]struct{}),
	}
}

// Apply enqueues a remote update and signals the owner. Called from transport
// goroutines.
func (t *Table) Apply(u Update) {
	t.mu.Lock()
	t.queue = append(t.queue, u)
	t.mu.Unlock()
	t.notify()
}

// Updates returns the change-notification channel. It carries at most one
// pending signal; waiters re-check their condition after each receive.
func (t *Table) Updates() <-chan struct{} {
	return t.updates
}

// Pull moves transport-received updates into the owner's inbox without
// applying them.
func (t *Table) Pull() {
	t.mu.Lock()
	t.inbox = append(t.inbox, t.queue...)
	t.queue = nil
	t.mu.Unlock()
}

// Checkout applies every pulled update to the visible rows.
func (t *Table) Checkout() {
	t.mu.Lock()
	inbox := t.inbox
	t.inbox = nil
	t.mu.Unlock()

	for _, u := range inbox {
		t.apply(u)
	}
}

// Sync is Pull followed by Checkout.
func (t *Table) Sync() {
	t.Pull()
	t.Checkout()
}

func (t *Table) apply(u Update) {
	switch u.Kind {
	case UpdateJoin:
		if _, exists := t.rows[u.ID]; exists {
			return
		}
		t.rows[u.ID] = &SessionRow{ID: u.ID, Name: u.Name, Token: u.Token, Seat: -1, ObservationPort: -1}
		t.order = append(t.order, u.ID)
	case UpdateLeave:
		row, ok := t.rows[u.ID]
		if !ok {
			return
		}
		// A seated session that drops mid-match stays on the roster so the
		// loop can account for it; an unseated one simply vanishes.
		if row.Seat >= 0 {
			row.Departed = true
			return
		}
		t.Remove(u.ID)
	case UpdateAction:
		if row, ok := t.rows[u.ID]; ok {
			row.Action = u.Action
			row.ActionReady = true
		}
	case UpdateReadyToStart:
		if row, ok := t.rows[u.ID]; ok {
			row.ReadyToStart = true
		}
	case UpdateAckGameOver:
		if row, ok := t.rows[u.ID]; ok {
			row.AckGameOver = true
		}
	}
}

// Session returns the row with the given id, or nil.
func (t *Table) Session(id int64) *SessionRow {
	return t.rows[id]
}

// Sessions returns the live rows in join order.
func (t *Table) Sessions() []*SessionRow {
	out := make([]*SessionRow, 0, len(t.rows))
	for _, id := range t.order {
		if row, ok := t.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Remove deletes a row outright, used when rejecting a join.
func (t *Table) Remove(id int64) {
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// State returns the mutable state record. Owner-only.
func (t *Table) State() *StateRow {
	return &t.state
}

// Commit stages an immutable snapshot of the current rows and state.
func (t *Table) Commit() {
	frame := Frame{
		Sessions: make([]SessionRow, 0, len(t.rows)),
		State:    t.state,
	}
	frame.State.Winners = append([]int(nil), t.state.Winners...)
	frame.State.Snapshot = append([]byte(nil), t.state.Snapshot...)
	for _, id := range t.order {
		if row, ok := t.rows[id]; ok {
			frame.Sessions = append(frame.Sessions, *row)
		}
	}

	t.mu.Lock()
	t.staged = &frame
	t.mu.Unlock()
}

// Push publishes the staged frame to every subscriber. Slow subscribers miss
// frames rather than blocking the match loop.
func (t *Table) Push() {
	t.mu.Lock()
	frame := t.staged
	subs := make([]chan Frame, 0, len(t.subs))
	for ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	if frame == nil {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- *frame:
		default:
		}
	}
}

// Subscribe registers a frame listener. The current staged frame, if any, is
// delivered immediately so late subscribers see the latest committed view.
func (t *Table) Subscribe() chan Frame {
	ch := make(chan Frame, 16)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	if t.staged != nil {
		ch <- *t.staged
	}
	t.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a frame listener.
func (t *Table) Unsubscribe(ch chan Frame) {
	t.mu.Lock()
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
	t.mu.Unlock()
}

func (t *Table) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}
