package scheduler

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/colosseumrl/colosseumrl/internal/ranking"
)

// Candidate is one waiting matchmaking request as the selector sees it.
type Candidate struct {
	Identity uuid.UUID
	Username string
}

// Selector picks which n of the waiting candidates form the next match,
// returning their indices. Candidates are presented in arrival order.
type Selector interface {
	Select(ctx context.Context, candidates []Candidate, n int) ([]int, error)
}

// FIFO matches the n longest-waiting candidates.
type FIFO struct{}

func (FIFO) Select(_ context.Context, candidates []Candidate, n int) ([]int, error) {
	picked := make([]int, n)
	for i := range picked {
		picked[i] = i
	}
	return picked, nil
}

// BySkill matches the contiguous skill-sorted window of n candidates with the
// smallest rating spread, preferring the longest-waiting window on ties.
type BySkill struct {
	Store *ranking.Store
}

func (s *BySkill) Select(ctx context.Context, candidates []Candidate, n int) ([]int, error) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Username
	}
	recs, err := s.Store.GetMulti(ctx, names...)
	if err != nil {
		return nil, err
	}

	type entry struct {
		index int
		mu    float64
	}
	entries := make([]entry, len(candidates))
	for i, c := range candidates {
		mu := 25.0
		if rec, ok := recs[strings.ToLower(c.Username)]; ok {
			mu = rec.Mu
		}
		entries[i] = entry{index: i, mu: mu}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].mu < entries[j].mu })

	best, bestSpread := 0, math.Inf(1)
	for i := 0; i+n <= len(entries); i++ {
		spread := entries[i+n-1].mu - entries[i].mu
		if spread < bestSpread {
			best, bestSpread = i, spread
		}
	}

	picked := make([]int, n)
	for i := range picked {
		picked[i] = entries[best+i].index
	}
	sort.Ints(picked)
	return picked, nil
}
