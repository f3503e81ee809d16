package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/colosseumrl/colosseumrl/internal/db"
	"github.com/colosseumrl/colosseumrl/internal/matchserver"
	"github.com/colosseumrl/colosseumrl/internal/ranking"
	"github.com/colosseumrl/colosseumrl/internal/rating"

	_ "github.com/colosseumrl/colosseumrl/internal/environment/tictactoe"
)

// stubLauncher replaces real match servers: every launch is immediately ready
// and the test decides when and how each match ends.
type stubLauncher struct {
	mu       sync.Mutex
	launches []matchserver.Config
	results  []chan matchserver.Result
}

func (l *stubLauncher) launch(_ context.Context, cfg matchserver.Config) (<-chan struct{}, <-chan matchserver.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ready := make(chan struct{})
	close(ready)
	results := make(chan matchserver.Result, 1)
	l.launches = append(l.launches, cfg)
	l.results = append(l.results, results)
	return ready, results, nil
}

func (l *stubLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func (l *stubLauncher) finish(i int, result matchserver.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[i] <- result
}

func (l *stubLauncher) config(i int) matchserver.Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches[i]
}

func newTestScheduler(t *testing.T, maxGames int) (*Scheduler, *ranking.Store, *stubLauncher) {
	t.Helper()
	pool, err := db.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	store, err := ranking.New(pool, rating.NewTrueSkill())
	require.NoError(t, err)

	s, err := New(Config{
		Hostname:      "localhost",
		Environment:   "tictactoe",
		GamePortStart: 23000,
		MaxGames:      maxGames,
		TickRate:      30,
		QueuePoll:     10 * time.Millisecond,
	}, store, nil)
	require.NoError(t, err)

	launcher := &stubLauncher{}
	s.launch = launcher.launch

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s, store, launcher
}

func requestMatch(s *Scheduler, name string) (chan Assignment, chan error) {
	assignments := make(chan Assignment, 1)
	errs := make(chan error, 1)
	go func() {
		a, err := s.RequestMatch(context.Background(), name, "secret")
		if err != nil {
			errs <- err
			return
		}
		assignments <- a
	}()
	return assignments, errs
}

func collect(t *testing.T, n int, assignments ...chan Assignment) []Assignment {
	t.Helper()
	out := make([]Assignment, 0, n)
	deadline := time.After(3 * time.Second)
	for len(out) < n {
		for _, ch := range assignments {
			select {
			case a := <-ch:
				out = append(out, a)
			case <-deadline:
				t.Fatalf("timed out: got %d of %d assignments", len(out), n)
			default:
			}
		}
		time.Sleep(time.Millisecond)
	}
	return out
}

func TestScheduler_FormsMatchAndHandsOutTokens(t *testing.T) {
	s, store, launcher := newTestScheduler(t, 2)

	a1, _ := requestMatch(s, "alice")
	a2, _ := requestMatch(s, "bob")
	got := collect(t, 2, a1, a2)

	require.Equal(t, 1, launcher.count())
	cfg := launcher.config(0)
	require.Len(t, cfg.Whitelist, 2)
	require.NotEqual(t, cfg.Whitelist[0], cfg.Whitelist[1])

	for _, a := range got {
		require.Equal(t, "localhost", a.Host)
		require.Equal(t, cfg.Port, a.Port)
		require.Contains(t, cfg.Whitelist, a.AuthKey)
		require.Equal(t, rating.Default().Mu, a.Rating)
	}

	// Both players hold their single sessions while the match runs.
	require.True(t, store.LoggedIn("alice"))
	require.True(t, store.LoggedIn("bob"))

	launcher.finish(0, matchserver.Result{
		Status:   matchserver.StatusCompleted,
		Rankings: map[string]int{"alice": 0, "bob": 1},
	})

	require.Eventually(t, func() bool {
		return !store.LoggedIn("alice") && !store.LoggedIn("bob")
	}, 2*time.Second, 10*time.Millisecond)

	alice, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Greater(t, alice.Mu, rating.Default().Mu)
}

func TestScheduler_EnforcesConcurrencyLimit(t *testing.T) {
	s, _, launcher := newTestScheduler(t, 1)

	a1, _ := requestMatch(s, "p1")
	a2, _ := requestMatch(s, "p2")
	collect(t, 2, a1, a2)
	require.Equal(t, 1, launcher.count())

	// Two more players queue up; no second match until the first one ends.
	a3, _ := requestMatch(s, "p3")
	a4, _ := requestMatch(s, "p4")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, launcher.count())

	launcher.finish(0, matchserver.Result{Status: matchserver.StatusConnectFailed})

	collect(t, 2, a3, a4)
	require.Equal(t, 2, launcher.count())
}

func TestScheduler_QueueIsFirstComeFirstServed(t *testing.T) {
	s, _, launcher := newTestScheduler(t, 1)

	a1, _ := requestMatch(s, "early1")
	a2, _ := requestMatch(s, "early2")
	collect(t, 2, a1, a2)

	cfg := launcher.config(0)
	require.Len(t, cfg.Whitelist, 2)
}

func TestScheduler_DuplicateLoginRejected(t *testing.T) {
	s, _, _ := newTestScheduler(t, 1)

	a1, _ := requestMatch(s, "alice")
	time.Sleep(50 * time.Millisecond) // let the first request claim the session

	_, err := s.RequestMatch(context.Background(), "alice", "secret")
	require.ErrorIs(t, err, ranking.ErrAlreadyLoggedIn)

	// Drain the still-pending first request by pairing it up.
	a2, _ := requestMatch(s, "bob")
	collect(t, 2, a1, a2)
}

func TestScheduler_WrongCredentialRejected(t *testing.T) {
	s, store, _ := newTestScheduler(t, 1)

	require.NoError(t, store.Set(context.Background(), "alice", "secret"))
	_, err := s.RequestMatch(context.Background(), "alice", "not-the-secret")
	require.ErrorIs(t, err, ranking.ErrWrongCredential)
}

func TestScheduler_DisconnectLeavesQueueAndSession(t *testing.T) {
	s, store, launcher := newTestScheduler(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := s.RequestMatch(ctx, "quitter", "secret")
		errs <- err
	}()

	require.Eventually(t, func() bool {
		return store.LoggedIn("quitter")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	require.Eventually(t, func() bool {
		return !store.LoggedIn("quitter")
	}, 2*time.Second, 10*time.Millisecond)

	// The quitter must not end up in anyone's match.
	a1, _ := requestMatch(s, "alice")
	a2, _ := requestMatch(s, "bob")
	collect(t, 2, a1, a2)
	require.Equal(t, 1, launcher.count())
}

func TestScheduler_FailedMatchReleasesPlayers(t *testing.T) {
	s, store, launcher := newTestScheduler(t, 1)

	a1, _ := requestMatch(s, "alice")
	a2, _ := requestMatch(s, "bob")
	collect(t, 2, a1, a2)

	launcher.finish(0, matchserver.Result{Status: matchserver.StatusStartFailed})

	require.Eventually(t, func() bool {
		return !store.LoggedIn("alice") && !store.LoggedIn("bob")
	}, 2*time.Second, 10*time.Millisecond)

	// Ratings stay untouched when no rankings were produced.
	alice, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, rating.Default().Mu, alice.Mu)
}

func TestScheduler_StatsReflectOccupancy(t *testing.T) {
	s, _, launcher := newTestScheduler(t, 2)

	a1, _ := requestMatch(s, "alice")
	a2, _ := requestMatch(s, "bob")
	collect(t, 2, a1, a2)

	stats := s.Stats()
	require.Equal(t, 1, stats.ActiveMatches)
	require.Equal(t, int64(1), stats.MatchesTotal)

	launcher.finish(0, matchserver.Result{
		Status:   matchserver.StatusCompleted,
		Rankings: map[string]int{"alice": 0, "bob": 1},
	})

	require.Eventually(t, func() bool {
		return s.Stats().ActiveMatches == 0
	}, 2*time.Second, 10*time.Millisecond)
}
