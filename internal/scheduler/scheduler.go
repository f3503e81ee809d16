// Package scheduler owns matchmaking: it authenticates players against the
// ranking store, queues them first-come-first-served, allocates ports and
// concurrency slots, launches match servers and supervises their full
// lifecycle so every resource is reclaimed exactly once.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/colosseumrl/colosseumrl/internal/environment"
	"github.com/colosseumrl/colosseumrl/internal/events"
	"github.com/colosseumrl/colosseumrl/internal/matchserver"
	"github.com/colosseumrl/colosseumrl/internal/ranking"
)

var meter = otel.Meter("scheduler")

// Config carries everything the scheduler needs to form matches.
type Config struct {
	Hostname         string
	Environment      string
	EnvConfig        environment.Config
	GamePortStart    int
	MaxGames         int
	TickRate         int
	Realtime         bool
	ObservationsOnly bool
	Timeouts         matchserver.Timeouts
	QueuePoll        time.Duration
	TokenSecret      []byte
}

// Assignment is the reply a queued player eventually receives: where to
// connect and the one-time token that reserves their seat.
type Assignment struct {
	Username string
	Host     string
	Port     int
	AuthKey  string
	Rating   float64
}

// Stats is a point-in-time snapshot of scheduler occupancy for the status
// endpoint.
type Stats struct {
	QueueDepth    int
	ActiveMatches int
	FreePorts     int
	MatchesTotal  int64
}

type loginRequest struct {
	username   string
	credential string
	reply      chan error
}

type pendingRequest struct {
	identity uuid.UUID
	username string
	assign   chan Assignment
}

type disconnectNotice struct {
	identity uuid.UUID
}

// launchFunc starts one match server and returns its readiness signal and a
// channel carrying the single terminal result. Tests substitute this to run
// matchmaking without real sockets.
type launchFunc func(ctx context.Context, cfg matchserver.Config) (<-chan struct{}, <-chan matchserver.Result, error)

// Scheduler is the matchmaking core. All queue state is confined to the
// allocation loop goroutine; the public API communicates with it over
// channels only.
type Scheduler struct {
	cfg      Config
	log      *slog.Logger
	store    *ranking.Store
	events   *events.Publisher
	pool     *PortPool
	selector Selector
	tokens   *tokenSigner
	launch   launchFunc

	playersPerGame int

	// slots is the concurrency semaphore: send acquires, receive releases.
	slots chan struct{}

	loginCh      chan loginRequest
	pendingCh    chan pendingRequest
	disconnectCh chan disconnectNotice

	queueDepth   atomic.Int64
	matchesTotal atomic.Int64
}

// New validates the configuration, probes the port range and builds a
// scheduler. Too few usable ports is fatal here, before any request is
// accepted.
func New(cfg Config, store *ranking.Store, publisher *events.Publisher) (*Scheduler, error) {
	env, err := environment.New(cfg.Environment, cfg.EnvConfig)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if cfg.MaxGames <= 0 {
		return nil, fmt.Errorf("scheduler: max games must be positive, got %d", cfg.MaxGames)
	}
	if cfg.QueuePoll <= 0 {
		cfg.QueuePoll = 200 * time.Millisecond
	}
	pool, err := NewPortPool(cfg.GamePortStart, cfg.MaxGames)
	if err != nil {
		return nil, err
	}
	tokens, err := newTokenSigner(cfg.TokenSecret)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:            cfg,
		log:            slog.With("component", "scheduler", "environment", cfg.Environment),
		store:          store,
		events:         publisher,
		pool:           pool,
		selector:       FIFO{},
		tokens:         tokens,
		playersPerGame: env.MinPlayers(),
		slots:          make(chan struct{}, cfg.MaxGames),
		loginCh:        make(chan loginRequest),
		pendingCh:      make(chan pendingRequest, 128),
		disconnectCh:   make(chan disconnectNotice, 128),
	}
	s.launch = s.launchMatchServer
	s.registerMetrics()
	return s, nil
}

// SetSelector replaces the matchmaking policy. Must be called before Run.
func (s *Scheduler) SetSelector(sel Selector) {
	s.selector = sel
}

// Run starts the login worker and the allocation loop and blocks until the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loginWorker(ctx)
	s.allocationLoop(ctx)
}

// RequestMatch authenticates the player, queues the request and blocks until
// a match assignment arrives or the caller gives up. An abandoned request is
// removed from the queue and the player is logged off.
func (s *Scheduler) RequestMatch(ctx context.Context, username, credentialHash string) (Assignment, error) {
	login := loginRequest{username: username, credential: credentialHash, reply: make(chan error, 1)}
	select {
	case s.loginCh <- login:
	case <-ctx.Done():
		return Assignment{}, ctx.Err()
	}

	var err error
	select {
	case err = <-login.reply:
	case <-ctx.Done():
		return Assignment{}, ctx.Err()
	}
	if err != nil {
		return Assignment{}, err
	}

	pending := pendingRequest{
		identity: uuid.New(),
		username: username,
		assign:   make(chan Assignment, 1),
	}
	select {
	case s.pendingCh <- pending:
	case <-ctx.Done():
		s.store.Logoff(username)
		return Assignment{}, ctx.Err()
	}

	select {
	case assignment := <-pending.assign:
		return assignment, nil
	case <-ctx.Done():
		// Best effort: the allocation loop may already have matched this
		// request, in which case the notice is simply ignored.
		select {
		case s.disconnectCh <- disconnectNotice{identity: pending.identity}:
		default:
		}
		return Assignment{}, ctx.Err()
	}
}

// Stats snapshots current occupancy.
func (s *Scheduler) Stats() Stats {
	return Stats{
		QueueDepth:    int(s.queueDepth.Load()),
		ActiveMatches: len(s.slots),
		FreePorts:     s.pool.Free(),
		MatchesTotal:  s.matchesTotal.Load(),
	}
}

// PlayersPerGame reports how many players each match requires.
func (s *Scheduler) PlayersPerGame() int {
	return s.playersPerGame
}

// loginWorker serializes authentication so the single-session rule is
// enforced in arrival order. First sighting of a username creates the
// account.
func (s *Scheduler) loginWorker(ctx context.Context) {
	for {
		var req loginRequest
		select {
		case <-ctx.Done():
			return
		case req = <-s.loginCh:
		}

		res, err := s.store.Login(ctx, req.username, req.credential)
		if err == nil && res == ranking.LoginUnknownUser {
			if err = s.store.Set(ctx, req.username, req.credential); err == nil {
				res, err = s.store.Login(ctx, req.username, req.credential)
			}
		}
		switch {
		case err != nil:
			req.reply <- err
		case res != ranking.LoginSuccess:
			req.reply <- res.Err()
		default:
			s.events.Publish(ctx, "player_queued", events.PlayerQueuedPayload{Username: req.username})
			req.reply <- nil
		}
	}
}

// allocationLoop owns the pending queue. It drains arrivals and departures,
// then forms as many matches as the queue and the concurrency limit allow.
func (s *Scheduler) allocationLoop(ctx context.Context) {
	var pending []pendingRequest
	ticker := time.NewTicker(s.cfg.QueuePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, req := range pending {
				s.store.Logoff(req.username)
			}
			return
		case req := <-s.pendingCh:
			pending = append(pending, req)
		case notice := <-s.disconnectCh:
			pending = s.removePending(ctx, pending, notice.identity)
		case <-ticker.C:
		}

		// Drain whatever else is already queued before allocating.
	drain:
		for {
			select {
			case req := <-s.pendingCh:
				pending = append(pending, req)
			case notice := <-s.disconnectCh:
				pending = s.removePending(ctx, pending, notice.identity)
			default:
				break drain
			}
		}
		s.queueDepth.Store(int64(len(pending)))

	allocate:
		for len(pending) >= s.playersPerGame {
			select {
			case s.slots <- struct{}{}:
			default:
				// At capacity; finished matches free slots via supervisors.
				break allocate
			}
			var ok bool
			pending, ok = s.formMatch(ctx, pending)
			if !ok {
				<-s.slots
				break allocate
			}
			s.queueDepth.Store(int64(len(pending)))
		}
	}
}

// removePending drops an abandoned request, logging the player off so they
// can queue again.
func (s *Scheduler) removePending(ctx context.Context, pending []pendingRequest, identity uuid.UUID) []pendingRequest {
	for i, req := range pending {
		if req.identity == identity {
			s.log.Info("player left the queue", "player.name", req.username)
			s.store.Logoff(req.username)
			s.events.Publish(ctx, "player_dequeued", events.PlayerDequeuedPayload{
				Username: req.username, Reason: "disconnected",
			})
			return append(pending[:i], pending[i+1:]...)
		}
	}
	return pending
}

// formMatch selects players, launches a match server and hands out
// assignments. On launch failure the selected players return to the front of
// the queue. The caller has already acquired a concurrency slot; formMatch
// owns it from here (handing it to the supervisor on success, reporting
// false so the caller releases it on failure).
func (s *Scheduler) formMatch(ctx context.Context, pending []pendingRequest) ([]pendingRequest, bool) {
	candidates := make([]Candidate, len(pending))
	for i, req := range pending {
		candidates[i] = Candidate{Identity: req.identity, Username: req.username}
	}
	picked, err := s.selector.Select(ctx, candidates, s.playersPerGame)
	if err != nil {
		s.log.Error("selector failed, falling back to arrival order", "error", err)
		picked, _ = FIFO{}.Select(ctx, candidates, s.playersPerGame)
	}

	selected := make([]pendingRequest, len(picked))
	for i, idx := range picked {
		selected[i] = pending[idx]
	}
	remaining := make([]pendingRequest, 0, len(pending)-len(picked))
	chosen := make(map[uuid.UUID]bool, len(picked))
	for _, req := range selected {
		chosen[req.identity] = true
	}
	for _, req := range pending {
		if !chosen[req.identity] {
			remaining = append(remaining, req)
		}
	}

	matchID := uuid.NewString()
	port := s.pool.Acquire()

	usernames := make([]string, len(selected))
	whitelist := make([]string, len(selected))
	for i, req := range selected {
		usernames[i] = req.username
		token, err := s.tokens.Issue(req.username)
		if err != nil {
			s.log.Error("failed to issue session token", "error", err)
			s.pool.Release(port)
			return append(selected, remaining...), false
		}
		whitelist[i] = token
	}

	cfg := matchserver.Config{
		MatchID:          matchID,
		Environment:      s.cfg.Environment,
		EnvConfig:        s.cfg.EnvConfig,
		Port:             port,
		TickRate:         s.cfg.TickRate,
		Realtime:         s.cfg.Realtime,
		ObservationsOnly: s.cfg.ObservationsOnly,
		Timeouts:         s.cfg.Timeouts,
		Whitelist:        whitelist,
	}
	ready, results, err := s.launch(ctx, cfg)
	if err != nil {
		s.log.Error("failed to launch match server", "error", err, "port", port)
		s.pool.Release(port)
		return append(selected, remaining...), false
	}

	sup := &Supervisor{
		MatchID: matchID,
		Port:    port,
		Players: usernames,
		Store:   s.store,
		Pool:    s.pool,
		Slots:   s.slots,
		Events:  s.events,
		Log:     s.log.With("match.id", matchID),
	}
	go sup.Wait(ctx, results)

	select {
	case <-ready:
	case <-ctx.Done():
		return remaining, true
	}

	recs, err := s.store.GetMulti(ctx, usernames...)
	if err != nil {
		s.log.Warn("failed to load ratings for assignments", "error", err)
	}
	for i, req := range selected {
		mu := 25.0
		if rec, ok := recs[strings.ToLower(req.username)]; ok {
			mu = rec.Mu
		}
		req.assign <- Assignment{
			Username: req.username,
			Host:     s.cfg.Hostname,
			Port:     port,
			AuthKey:  whitelist[i],
			Rating:   mu,
		}
	}

	s.matchesTotal.Add(1)
	s.log.Info("match created", "match.id", matchID, "port", port, "players", usernames)
	s.events.Publish(ctx, "match_created", events.MatchCreatedPayload{
		MatchID:     matchID,
		Environment: s.cfg.Environment,
		Port:        port,
		Players:     usernames,
	})
	return remaining, true
}

// launchMatchServer is the production launch path: an in-process match server
// on its own goroutine.
func (s *Scheduler) launchMatchServer(ctx context.Context, cfg matchserver.Config) (<-chan struct{}, <-chan matchserver.Result, error) {
	srv, err := matchserver.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	results := make(chan matchserver.Result, 1)
	go func() {
		results <- srv.Run(ctx)
	}()
	return srv.Ready(), results, nil
}

func (s *Scheduler) registerMetrics() {
	queueDepth, err := meter.Int64ObservableGauge("scheduler.queue.depth",
		metric.WithDescription("Players currently waiting for a match"))
	if err != nil {
		return
	}
	activeMatches, err := meter.Int64ObservableGauge("scheduler.matches.active",
		metric.WithDescription("Match servers currently running"))
	if err != nil {
		return
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(queueDepth, s.queueDepth.Load())
		o.ObserveInt64(activeMatches, int64(len(s.slots)))
		return nil
	}, queueDepth, activeMatches)
	if err != nil {
		s.log.Warn("failed to register scheduler metrics", "error", err)
	}
}
