// Package matchserver hosts the authoritative state machine for one match:
// CONNECTING, FINALIZING, AWAITING_START, RUNNING, CLEANUP, with FAILED
// reachable from any phase on timeout. The server owns the match's replicated
// state table and is the only writer of seats, turn flags, rewards and the
// terminal flag.
package matchserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/colosseumrl/colosseumrl/internal/channel"
	"github.com/colosseumrl/colosseumrl/internal/environment"
)

var tracer = otel.Tracer("matchserver")

// Status is the terminal status of a match.
type Status int

const (
	StatusCompleted Status = iota
	StatusConnectFailed
	StatusStartFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusConnectFailed:
		return "connect_failed"
	case StatusStartFailed:
		return "start_failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result is the single typed value a match server yields to its supervisor.
// Rankings maps usernames to finishing ranks (0 is best) and is nil for
// failed matches.
type Result struct {
	Status   Status
	Rankings map[string]int
}

// Timeouts bounds every phase of the match. The move timeout is rolling: it
// restarts after every executed tick and forces progression rather than
// failing the match.
type Timeouts struct {
	Connect time.Duration
	Start   time.Duration
	Move    time.Duration
	End     time.Duration
}

// DefaultTimeouts mirrors the defaults the system has always shipped with.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 30 * time.Second,
		Start:   5 * time.Second,
		Move:    5 * time.Second,
		End:     10 * time.Second,
	}
}

// Config fully describes one match server.
type Config struct {
	MatchID          string
	Environment      string
	EnvConfig        environment.Config
	Port             int
	TickRate         int
	Realtime         bool
	ObservationsOnly bool
	Timeouts         Timeouts
	// Whitelist holds one-time per-session tokens. Empty disables the check.
	Whitelist []string
}

// Server runs one match from formation to termination.
type Server struct {
	cfg       Config
	env       environment.Environment
	table     *channel.Table
	transport *channel.Transport
	log       *slog.Logger

	feeds  map[int64]*channel.Feed
	bySeat []*channel.SessionRow

	ready     chan struct{}
	readyOnce sync.Once
}

// New validates the environment configuration eagerly and builds a match
// server. A bad environment name or config fails here, before any resources
// are held.
func New(cfg Config) (*Server, error) {
	env, err := environment.New(cfg.Environment, cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("matchserver: %w", err)
	}
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("matchserver: tick rate must be positive, got %d", cfg.TickRate)
	}
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}

	envConfig, err := json.Marshal(cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("matchserver: marshal environment config: %w", err)
	}
	table := channel.NewTable(channel.StateRow{
		Environment:      cfg.Environment,
		Config:           envConfig,
		ObservationNames: env.ObservationNames(),
		Joinable:         true,
	})

	return &Server{
		cfg:       cfg,
		env:       env,
		table:     table,
		transport: channel.NewTransport(table),
		feeds:     make(map[int64]*channel.Feed),
		ready:     make(chan struct{}),
		log:       slog.With("match.id", cfg.MatchID, "environment", cfg.Environment),
	}, nil
}

// Ready is closed once the server is listening and its whitelist is
// installed; the scheduler waits on it before handing out coordinates.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Table exposes the match's replicated state table for in-process clients.
func (s *Server) Table() *channel.Table {
	return s.table
}

// Run drives the match through its phases and returns the terminal result.
// Every exit path, including failures, broadcasts the terminal flag so no
// connected client is left blocked.
func (s *Server) Run(ctx context.Context) Result {
	ctx, span := tracer.Start(ctx, "matchserver.Run")
	span.SetAttributes(
		attribute.String("match.id", s.cfg.MatchID),
		attribute.String("match.environment", s.cfg.Environment),
	)
	defer span.End()

	if err := s.transport.Start(s.cfg.Port); err != nil {
		s.log.Error("failed to start match transport", "error", err)
		s.signalReady()
		return Result{Status: StatusConnectFailed}
	}
	defer s.shutdown()

	pacer := NewPacer(s.cfg.TickRate)
	s.signalReady()

	s.log.Info("waiting for players to join", "required", s.env.MinPlayers())
	if !s.connect(ctx, pacer) {
		return s.fail(StatusConnectFailed, "could not find enough players")
	}

	state, turns, err := s.finalize()
	if err != nil {
		s.log.Error("failed to initialize environment", "error", err)
		return s.fail(StatusAborted, "environment initialization failed")
	}

	if !s.awaitStart(ctx) {
		return s.fail(StatusStartFailed, "players dropped out before the game started")
	}

	s.log.Info("game started", "players", len(s.bySeat))
	state, winners, ok := s.run(ctx, pacer, state, turns)
	if !ok {
		return s.fail(StatusAborted, "game loop aborted")
	}

	return s.cleanup(ctx, state, winners)
}

// connect accepts sessions until MinPlayers have joined, enforcing the
// one-time token whitelist, or gives up on the connect timeout.
func (s *Server) connect(ctx context.Context, pacer *Pacer) bool {
	whitelisted := make(map[string]bool, len(s.cfg.Whitelist))
	for _, token := range s.cfg.Whitelist {
		whitelisted[token] = false
	}
	enforce := len(whitelisted) > 0

	accepted := make(map[int64]string) // id -> token

	pacer.StartTimeout(s.cfg.Timeouts.Connect)
	for len(accepted) < s.env.MinPlayers() {
		if pacer.Tick(ctx) || ctx.Err() != nil {
			return false
		}
		s.table.Sync()

		for _, row := range s.table.Sessions() {
			if _, ok := accepted[row.ID]; ok {
				continue
			}
			if enforce {
				used, known := whitelisted[row.Token]
				if !known {
					s.log.Info("rejecting join with invalid token", "player.name", row.Name)
					s.table.Remove(row.ID)
					continue
				}
				if used {
					s.log.Info("rejecting join with already-used token", "player.name", row.Name)
					s.table.Remove(row.ID)
					continue
				}
				whitelisted[row.Token] = true
			}

			feed, err := channel.NewFeed()
			if err != nil {
				s.log.Error("failed to open observation feed", "error", err)
				s.table.Remove(row.ID)
				continue
			}
			s.feeds[row.ID] = feed
			accepted[row.ID] = row.Token
			s.log.Info("player joined", "player.name", row.Name)
		}

		// Sessions that joined and left again free their token and feed.
		for id, token := range accepted {
			if s.table.Session(id) != nil {
				continue
			}
			s.log.Info("player left before the match formed", "session.id", id)
			if enforce {
				whitelisted[token] = false
			}
			s.closeFeed(id)
			delete(accepted, id)
		}
	}
	return true
}

// finalize assigns seats in join order, creates the initial state, publishes
// initial observations and marks the match no longer joinable.
func (s *Server) finalize() (environment.State, []int, error) {
	s.table.State().Joinable = false

	// Anyone who squeezed in after the quota was met never got a feed; drop
	// them before seats are handed out.
	for _, row := range s.table.Sessions() {
		if _, ok := s.feeds[row.ID]; !ok {
			s.table.Remove(row.ID)
		}
	}

	rows := s.table.Sessions()
	state, turns, err := s.env.NewState(len(rows))
	if err != nil {
		return nil, nil, err
	}

	initialTurn := make(map[int]bool, len(turns))
	for _, seat := range turns {
		initialTurn[seat] = true
	}

	s.bySeat = make([]*channel.SessionRow, len(rows))
	for seat, row := range rows {
		row.Seat = seat
		row.ObservationPort = s.feeds[row.ID].Port()
		row.Turn = initialTurn[seat]
		s.bySeat[seat] = row
		if err := s.feeds[row.ID].Publish(seat, s.env.StateToObservation(state, seat)); err != nil {
			s.log.Warn("failed to publish initial observation", "seat", seat, "error", err)
		}
	}

	s.updateSnapshot(state)
	s.table.Commit()
	s.table.Push()
	return state, turns, nil
}

// awaitStart waits, event-driven, until every session acknowledges readiness.
// Any dropout or the start timeout fails the match.
func (s *Server) awaitStart(ctx context.Context) bool {
	deadline := time.NewTimer(s.cfg.Timeouts.Start)
	defer deadline.Stop()

	for {
		s.table.Sync()
		allReady := true
		for _, row := range s.bySeat {
			if row.Departed {
				return false
			}
			if !row.ReadyToStart {
				allReady = false
			}
		}
		if allReady {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-s.table.Updates():
		}
	}
}

// run is the core tick loop. Actions are applied in the deterministic order
// of the current turn-holder list; the rolling move timeout forces
// progression with whatever actions are present.
func (s *Server) run(ctx context.Context, pacer *Pacer, state environment.State, turns []int) (environment.State, []int, bool) {
	var winners []int

	pacer.StartTimeout(s.cfg.Timeouts.Move)
	for {
		if ctx.Err() != nil {
			return state, nil, false
		}
		forced := pacer.Tick(ctx)
		s.table.Sync()

		current := make([]*channel.SessionRow, len(turns))
		for i, seat := range turns {
			current[i] = s.bySeat[seat]
		}

		if !s.cfg.Realtime && !forced && !allActionReady(current) {
			continue
		}

		// Invalid or missing actions become the empty no-op; this is
		// recovered locally and never aborts the match.
		actions := make([]string, len(current))
		for i, row := range current {
			action := row.Action
			if action != "" && !s.env.IsValidAction(state, row.Seat, action) {
				s.log.Info("invalid action replaced with no-op",
					"seat", row.Seat, "player.name", row.Name, "action", action)
				action = ""
			}
			actions[i] = action
		}

		trans, err := s.env.NextState(state, turns, actions)
		if err != nil {
			s.log.Error("environment rejected transition", "error", err)
			return state, nil, false
		}
		state = trans.State

		for i, row := range current {
			if i < len(trans.Rewards) {
				row.Reward = trans.Rewards[i]
			}
			row.ActionReady = false
			row.Turn = false
			row.Action = ""
		}

		turns = trans.NextTurns
		for _, seat := range turns {
			row := s.bySeat[seat]
			row.Turn = true
			if err := s.feeds[row.ID].Publish(seat, s.env.StateToObservation(state, seat)); err != nil {
				s.log.Warn("failed to publish observation", "seat", seat, "error", err)
			}
		}

		if trans.Terminal {
			winners = trans.Winners
			st := s.table.State()
			st.Terminal = true
			st.Winners = append([]int(nil), winners...)
			for _, seat := range winners {
				s.bySeat[seat].Winner = true
			}
			s.log.Info("game reached terminal state", "winners", winners)
		}

		s.updateSnapshot(state)
		s.table.Commit()
		s.table.Push()

		if trans.Terminal {
			return state, winners, true
		}
		pacer.StartTimeout(s.cfg.Timeouts.Move)
	}
}

// cleanup broadcasts the terminal flag, waits (bounded) for game-over
// acknowledgements, and computes the final ranking map.
func (s *Server) cleanup(ctx context.Context, state environment.State, winners []int) Result {
	for _, row := range s.bySeat {
		row.Turn = true
	}
	s.table.Commit()
	s.table.Push()

	deadline := time.NewTimer(s.cfg.Timeouts.End)
	defer deadline.Stop()

wait:
	for {
		s.table.Sync()
		if allAcknowledged(s.bySeat) {
			break
		}
		select {
		case <-ctx.Done():
			break wait
		case <-deadline.C:
			s.log.Warn("not all players acknowledged game over before the end timeout")
			break wait
		case <-s.table.Updates():
		}
	}

	players := make([]int, len(s.bySeat))
	for i := range players {
		players[i] = i
	}
	seatRanks := environment.ComputeRanking(s.env, state, players, winners)

	rankings := make(map[string]int, len(seatRanks))
	for seat, rank := range seatRanks {
		rankings[s.bySeat[seat].Name] = rank
	}
	s.log.Info("game ended", "rankings", rankings)
	return Result{Status: StatusCompleted, Rankings: rankings}
}

// fail broadcasts the terminal flag so blocked clients are released, then
// yields an empty result.
func (s *Server) fail(status Status, reason string) Result {
	s.log.Error("match failed", "status", status.String(), "reason", reason)
	s.table.State().Terminal = true
	s.table.Commit()
	s.table.Push()

	// Give client writers one tick to flush the terminal frame.
	time.Sleep(time.Second / time.Duration(s.cfg.TickRate))
	return Result{Status: status}
}

func (s *Server) updateSnapshot(state environment.State) {
	if s.cfg.ObservationsOnly {
		return
	}
	ser, ok := s.env.(environment.Serializer)
	if !ok {
		return
	}
	snapshot, err := ser.SerializeState(state)
	if err != nil {
		s.log.Warn("failed to serialize state snapshot", "error", err)
		return
	}
	s.table.State().Snapshot = snapshot
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Server) closeFeed(id int64) {
	if feed, ok := s.feeds[id]; ok {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = feed.Close(ctx)
		cancel()
		delete(s.feeds, id)
	}
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.transport.Close(ctx)
	for id := range s.feeds {
		s.closeFeed(id)
	}
}

func allActionReady(rows []*channel.SessionRow) bool {
	if len(rows) == 0 {
		return false
	}
	for _, row := range rows {
		if !row.ActionReady {
			return false
		}
	}
	return true
}

func allAcknowledged(rows []*channel.SessionRow) bool {
	for _, row := range rows {
		if !row.AckGameOver && !row.Departed {
			return false
		}
	}
	return true
}
