// Package rating isolates the skill-rating algorithm behind a narrow update
// interface so the ranking store never depends on a specific rating system.
package rating

import (
	"sort"

	trueskill "github.com/mafredri/go-trueskill"
)

// Rating is one player's skill estimate: a mean and its uncertainty.
type Rating struct {
	Mu    float64
	Sigma float64
}

// Default is the rating assigned to players on first sighting.
func Default() Rating {
	return Rating{Mu: 25, Sigma: 25.0 / 3.0}
}

// Updater computes new ratings from the previous ratings and the finishing
// placements of one match (rank 0 is best).
type Updater interface {
	Update(before map[string]Rating, placements map[string]int) map[string]Rating
}

// TrueSkill updates ratings with pairwise TrueSkill factor-graph passes over
// adjacent players in rank order; equal ranks are treated as draws.
type TrueSkill struct {
	ts trueskill.Config
}

// NewTrueSkill creates a TrueSkill updater with library defaults.
func NewTrueSkill() *TrueSkill {
	return &TrueSkill{ts: trueskill.New()}
}

func (u *TrueSkill) Update(before map[string]Rating, placements map[string]int) map[string]Rating {
	names := make([]string, 0, len(placements))
	for name := range placements {
		names = append(names, name)
	}
	// Rank order, with a stable name tiebreak for determinism.
	sort.Slice(names, func(i, j int) bool {
		if placements[names[i]] != placements[names[j]] {
			return placements[names[i]] < placements[names[j]]
		}
		return names[i] < names[j]
	})

	after := make(map[string]Rating, len(before))
	for name, r := range before {
		after[name] = r
	}

	for i := 0; i+1 < len(names); i++ {
		a, b := names[i], names[i+1]
		draw := placements[a] == placements[b]
		players := []trueskill.Player{
			trueskill.NewPlayer(after[a].Mu, after[a].Sigma),
			trueskill.NewPlayer(after[b].Mu, after[b].Sigma),
		}
		adjusted, _ := u.ts.AdjustSkills(players, draw)
		after[a] = Rating{Mu: adjusted[0].Mu(), Sigma: adjusted[0].Sigma()}
		after[b] = Rating{Mu: adjusted[1].Mu(), Sigma: adjusted[1].Sigma()}
	}
	return after
}
