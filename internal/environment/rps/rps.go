// Package rps implements three-player rock-paper-scissors. All three seats
// act simultaneously every tick, which makes it the reference environment for
// multi-turn-holder progression.
package rps

import (
	"fmt"

	"github.com/colosseumrl/colosseumrl/internal/environment"
)

const (
	Rock     = "rock"
	Paper    = "paper"
	Scissors = "scissors"
)

const players = 3

var beats = map[string]string{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

// GameState tracks how many rounds have been replayed due to ties.
type GameState struct {
	Round int `json:"round"`
}

// Env is the three-player rock-paper-scissors environment.
type Env struct{}

func init() {
	environment.Register("rps", func(cfg environment.Config) (environment.Environment, error) {
		if cfg.Players != 0 && cfg.Players != players {
			return nil, fmt.Errorf("rps: exactly %d players required, got %d", players, cfg.Players)
		}
		return &Env{}, nil
	})
}

func (e *Env) MinPlayers() int { return players }
func (e *Env) MaxPlayers() int { return players }

func (e *Env) ObservationNames() []string { return []string{"round"} }

func (e *Env) NewState(numPlayers int) (environment.State, []int, error) {
	if numPlayers != players {
		return nil, nil, fmt.Errorf("rps: expected %d players, got %d", players, numPlayers)
	}
	return &GameState{}, []int{0, 1, 2}, nil
}

func (e *Env) NextState(state environment.State, turns []int, actions []string) (environment.Transition, error) {
	gs, ok := state.(*GameState)
	if !ok {
		return environment.Transition{}, fmt.Errorf("rps: unexpected state type %T", state)
	}
	if len(turns) != players || len(actions) != players {
		return environment.Transition{}, fmt.Errorf("rps: expected %d simultaneous actions, got %d", players, len(actions))
	}

	// Gestures present this round. A missing action counts as a forfeited
	// gesture that beats nothing and loses to everything.
	winners := resolve(turns, actions)

	next := &GameState{Round: gs.Round + 1}
	rewards := make([]float64, len(turns))
	winnerSet := make(map[int]bool, len(winners))
	for _, w := range winners {
		winnerSet[w] = true
	}

	if len(winners) == 0 {
		// Tied round, replay with everyone acting again.
		return environment.Transition{
			State:     next,
			NextTurns: append([]int(nil), turns...),
			Rewards:   rewards,
		}, nil
	}

	for i, seat := range turns {
		if winnerSet[seat] {
			rewards[i] = 1
		} else {
			rewards[i] = -1
		}
	}
	return environment.Transition{
		State:    next,
		Rewards:  rewards,
		Terminal: true,
		Winners:  winners,
	}, nil
}

func (e *Env) ValidActions(state environment.State, player int) []string {
	return []string{Rock, Paper, Scissors}
}

func (e *Env) IsValidAction(state environment.State, player int, action string) bool {
	_, ok := beats[action]
	return ok
}

func (e *Env) StateToObservation(state environment.State, player int) environment.Observation {
	gs := state.(*GameState)
	return environment.Observation{"round": gs.Round}
}

// resolve returns the winning seats for one round. A gesture wins when it
// beats at least one present gesture and is beaten by none. Rounds where all
// gestures tie, or all three distinct gestures appear, have no winner.
func resolve(turns []int, actions []string) []int {
	present := make(map[string]bool, players)
	for _, a := range actions {
		if a != "" {
			present[a] = true
		}
	}
	if len(present) == 0 || len(present) == len(beats) {
		return nil
	}

	var winners []int
	for i, seat := range turns {
		gesture := actions[i]
		if gesture == "" {
			continue
		}
		beatsSome := false
		beatenByNone := true
		for other := range present {
			if other == gesture {
				continue
			}
			if beats[gesture] == other {
				beatsSome = true
			}
			if beats[other] == gesture {
				beatenByNone = false
			}
		}
		// With everyone throwing the same gesture nothing is beaten, so the
		// round replays unless a forfeit is present.
		if len(present) == 1 {
			beatsSome = anyForfeit(actions)
		}
		if beatsSome && beatenByNone {
			winners = append(winners, seat)
		}
	}
	return winners
}

func anyForfeit(actions []string) bool {
	for _, a := range actions {
		if a == "" {
			return true
		}
	}
	return false
}
