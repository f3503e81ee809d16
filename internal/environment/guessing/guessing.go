// Package guessing implements a tiny number-guessing environment used for
// exercising the match pipeline end to end. Two players alternate guessing a
// hidden number; the reward is the negative distance to it and guessing it
// exactly wins the game.
package guessing

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/colosseumrl/colosseumrl/internal/environment"
)

const upperBound = 100

// GameState holds the hidden target for one game.
type GameState struct {
	Target int `json:"target"`
}

// Env is the guessing environment.
type Env struct {
	players int
}

func init() {
	environment.Register("guessing", func(cfg environment.Config) (environment.Environment, error) {
		players := cfg.Players
		if players == 0 {
			players = 2
		}
		if players < 2 {
			return nil, fmt.Errorf("guessing: at least 2 players required, got %d", players)
		}
		return &Env{players: players}, nil
	})
}

func (e *Env) MinPlayers() int { return e.players }
func (e *Env) MaxPlayers() int { return e.players }

func (e *Env) ObservationNames() []string { return []string{"bound"} }

func (e *Env) NewState(numPlayers int) (environment.State, []int, error) {
	if numPlayers != e.players {
		return nil, nil, fmt.Errorf("guessing: expected %d players, got %d", e.players, numPlayers)
	}
	return &GameState{Target: rand.Intn(upperBound)}, []int{0}, nil
}

func (e *Env) NextState(state environment.State, turns []int, actions []string) (environment.Transition, error) {
	gs, ok := state.(*GameState)
	if !ok {
		return environment.Transition{}, fmt.Errorf("guessing: unexpected state type %T", state)
	}
	if len(turns) != 1 || len(actions) != 1 {
		return environment.Transition{}, fmt.Errorf("guessing: expected one acting player, got %d", len(turns))
	}

	seat := turns[0]
	nextTurns := []int{(seat + 1) % e.players}

	// A no-op action burns the turn with the worst possible reward.
	if actions[0] == "" {
		return environment.Transition{
			State:     gs,
			NextTurns: nextTurns,
			Rewards:   []float64{-float64(upperBound)},
		}, nil
	}

	guess, err := strconv.Atoi(actions[0])
	if err != nil {
		return environment.Transition{}, fmt.Errorf("guessing: illegal action %q: %w", actions[0], err)
	}

	distance := guess - gs.Target
	if distance < 0 {
		distance = -distance
	}

	trans := environment.Transition{
		State:     gs,
		NextTurns: nextTurns,
		Rewards:   []float64{-float64(distance)},
	}
	if distance == 0 {
		trans.Terminal = true
		trans.Winners = []int{seat}
	}
	return trans, nil
}

func (e *Env) ValidActions(state environment.State, player int) []string {
	actions := make([]string, upperBound)
	for i := range actions {
		actions[i] = strconv.Itoa(i)
	}
	return actions
}

func (e *Env) IsValidAction(state environment.State, player int, action string) bool {
	guess, err := strconv.Atoi(action)
	return err == nil && guess >= 0 && guess < upperBound
}

func (e *Env) StateToObservation(state environment.State, player int) environment.Observation {
	return environment.Observation{"bound": upperBound}
}
