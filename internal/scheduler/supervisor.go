package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/colosseumrl/colosseumrl/internal/events"
	"github.com/colosseumrl/colosseumrl/internal/matchserver"
	"github.com/colosseumrl/colosseumrl/internal/ranking"
)

// Supervisor watches one running match and settles its aftermath: ratings,
// logoffs, and the port and concurrency slot the match held. Reclamation runs
// exactly once no matter how the match ends.
type Supervisor struct {
	MatchID string
	Port    int
	Players []string
	Store   *ranking.Store
	Pool    *PortPool
	Slots   chan struct{}
	Events  *events.Publisher
	Log     *slog.Logger

	reclaim sync.Once
}

// Wait blocks for the match's terminal result and completes the lifecycle.
// A cancelled context still reclaims resources.
func (s *Supervisor) Wait(ctx context.Context, results <-chan matchserver.Result) {
	select {
	case result := <-results:
		s.Complete(ctx, result)
	case <-ctx.Done():
		s.release()
	}
}

// Complete applies the match outcome. Completed matches update ratings, which
// also releases the players' sessions; failed matches only log everyone off.
func (s *Supervisor) Complete(ctx context.Context, result matchserver.Result) {
	defer s.release()

	if result.Rankings != nil {
		if err := s.Store.UpdateRanking(ctx, result.Rankings); err != nil {
			s.Log.Error("failed to update rankings", "error", err)
		}
	}
	// UpdateRanking releases exactly its participants; Logoff covers failed
	// matches and any player whose ranking row was missing. It is idempotent.
	for _, username := range s.Players {
		s.Store.Logoff(username)
	}

	s.Log.Info("match settled", "status", result.Status.String(), "rankings", result.Rankings)
	s.Events.Publish(ctx, "match_finished", events.MatchFinishedPayload{
		MatchID:  s.MatchID,
		Status:   result.Status.String(),
		Rankings: result.Rankings,
	})
}

func (s *Supervisor) release() {
	s.reclaim.Do(func() {
		s.Pool.Release(s.Port)
		<-s.Slots
	})
}
