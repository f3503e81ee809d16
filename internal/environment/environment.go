// Package environment defines the pluggable game-rules contract consumed by
// the match server, along with the registry used to construct environments by
// name at match-server startup.
package environment

import (
	"fmt"
	"sort"
	"sync"
)

// State is the opaque game state owned by an environment. The match server
// never inspects it; it only threads it through NextState calls.
type State any

// Observation is a per-player view of the state, keyed by observation name.
type Observation map[string]any

// Transition is the result of applying one set of actions to a state.
type Transition struct {
	State     State
	NextTurns []int
	Rewards   []float64
	Terminal  bool
	Winners   []int
}

// Environment is the contract every game implements. All functions must be
// pure with respect to their inputs: identical inputs yield identical outputs.
type Environment interface {
	MinPlayers() int
	MaxPlayers() int

	// ObservationNames lists the keys present in every Observation.
	ObservationNames() []string

	// NewState creates the initial state and the initial turn-holder seats.
	// Seats are always numbered 0..numPlayers-1.
	NewState(numPlayers int) (State, []int, error)

	// NextState applies the actions of the given turn-holder seats, in the
	// order of the turns slice. Rewards are aligned with turns.
	NextState(state State, turns []int, actions []string) (Transition, error)

	ValidActions(state State, player int) []string
	IsValidAction(state State, player int, action string) bool
	StateToObservation(state State, player int) Observation
}

// Ranker is an optional capability: environments that can produce a richer
// final ranking than winners-first implement it.
type Ranker interface {
	// ComputeRanking maps every seat to its finishing rank, 0 being best.
	ComputeRanking(state State, players []int, winners []int) map[int]int
}

// Serializer is an optional capability for environments whose full state can
// be shipped to clients alongside observations.
type Serializer interface {
	SerializeState(state State) ([]byte, error)
	DeserializeState(data []byte) (State, error)
}

// ComputeRanking resolves the final ranking for a finished match, using the
// environment's Ranker when present and the default winners-rank-0 scheme
// otherwise.
func ComputeRanking(env Environment, state State, players []int, winners []int) map[int]int {
	if r, ok := env.(Ranker); ok {
		return r.ComputeRanking(state, players, winners)
	}
	winnerSet := make(map[int]bool, len(winners))
	for _, w := range winners {
		winnerSet[w] = true
	}
	ranking := make(map[int]int, len(players))
	for _, p := range players {
		if winnerSet[p] {
			ranking[p] = 0
		} else {
			ranking[p] = 1
		}
	}
	return ranking
}

// Factory builds an environment from a validated configuration.
type Factory func(cfg Config) (Environment, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named environment factory. Registering the same name twice
// panics; environments are registered from init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("environment: duplicate registration for %q", name))
	}
	registry[name] = factory
}

// New constructs the named environment. The factory validates the
// configuration eagerly, so a bad config fails here rather than mid-match.
func New(name string, cfg Config) (Environment, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("environment: unknown environment %q (available: %v)", name, Available())
	}
	return factory(cfg)
}

// Available returns the registered environment names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
