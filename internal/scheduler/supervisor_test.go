package scheduler

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colosseumrl/colosseumrl/internal/db"
	"github.com/colosseumrl/colosseumrl/internal/matchserver"
	"github.com/colosseumrl/colosseumrl/internal/ranking"
	"github.com/colosseumrl/colosseumrl/internal/rating"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *PortPool, chan struct{}, *ranking.Store) {
	t.Helper()
	dbPool, err := db.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbPool.Close() })

	store, err := ranking.New(dbPool, rating.NewTrueSkill())
	require.NoError(t, err)

	pool, err := NewPortPool(26000, 2)
	require.NoError(t, err)

	slots := make(chan struct{}, 2)
	slots <- struct{}{} // the match under supervision holds one slot
	port := pool.Acquire()

	sup := &Supervisor{
		MatchID: "sup-test",
		Port:    port,
		Players: []string{"alice", "bob"},
		Store:   store,
		Pool:    pool,
		Slots:   slots,
		Events:  nil,
		Log:     slog.Default(),
	}
	return sup, pool, slots, store
}

func TestSupervisor_ReclaimsResourcesExactlyOnce(t *testing.T) {
	sup, pool, slots, _ := newTestSupervisor(t)
	freeBefore := pool.Free()

	result := matchserver.Result{Status: matchserver.StatusConnectFailed}
	sup.Complete(context.Background(), result)
	sup.Complete(context.Background(), result) // double completion must be a no-op

	require.Equal(t, freeBefore+1, pool.Free())
	require.Len(t, slots, 0)
}

func TestSupervisor_CompletedMatchUpdatesRatings(t *testing.T) {
	sup, _, _, store := newTestSupervisor(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		require.NoError(t, store.Set(ctx, name, "secret"))
		_, err := store.Login(ctx, name, "secret")
		require.NoError(t, err)
	}

	sup.Complete(ctx, matchserver.Result{
		Status:   matchserver.StatusCompleted,
		Rankings: map[string]int{"alice": 0, "bob": 1},
	})

	alice, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	bob, err := store.Get(ctx, "bob")
	require.NoError(t, err)
	require.Greater(t, alice.Mu, bob.Mu)
	require.False(t, store.LoggedIn("alice"))
	require.False(t, store.LoggedIn("bob"))
}

func TestSupervisor_FailedMatchSkipsRatingsButLogsOff(t *testing.T) {
	sup, _, _, store := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "alice", "secret"))
	_, err := store.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	sup.Complete(ctx, matchserver.Result{Status: matchserver.StatusAborted})

	alice, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, rating.Default().Mu, alice.Mu)
	require.False(t, store.LoggedIn("alice"))
}
