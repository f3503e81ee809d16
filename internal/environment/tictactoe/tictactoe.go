// Package tictactoe implements a two-player tic-tac-toe environment.
package tictactoe

import (
	"encoding/json"
	"fmt"

	"github.com/colosseumrl/colosseumrl/internal/environment"
)

// Mark represents the content of a board cell.
type Mark string

const (
	None    Mark = ""
	PlayerX Mark = "X"
	PlayerO Mark = "O"
)

const boardSize = 3

// GameState is the full state of one tic-tac-toe game. Seat 0 plays X,
// seat 1 plays O; X always moves first.
type GameState struct {
	Board  [boardSize][boardSize]Mark `json:"board"`
	Turn   int                        `json:"turn"`
	Winner int                        `json:"winner"` // seat number, -1 while undecided
	Draw   bool                       `json:"draw"`
}

// Env is the tic-tac-toe environment.
type Env struct{}

func init() {
	environment.Register("tictactoe", func(cfg environment.Config) (environment.Environment, error) {
		if cfg.Players != 0 && cfg.Players != 2 {
			return nil, fmt.Errorf("tictactoe: exactly 2 players required, got %d", cfg.Players)
		}
		return &Env{}, nil
	})
}

func (e *Env) MinPlayers() int { return 2 }
func (e *Env) MaxPlayers() int { return 2 }

func (e *Env) ObservationNames() []string { return []string{"board", "turn"} }

func (e *Env) NewState(numPlayers int) (environment.State, []int, error) {
	if numPlayers != 2 {
		return nil, nil, fmt.Errorf("tictactoe: exactly 2 players required, got %d", numPlayers)
	}
	return &GameState{Turn: 0, Winner: -1}, []int{0}, nil
}

func (e *Env) NextState(state environment.State, turns []int, actions []string) (environment.Transition, error) {
	gs, ok := state.(*GameState)
	if !ok {
		return environment.Transition{}, fmt.Errorf("tictactoe: unexpected state type %T", state)
	}
	if len(turns) != 1 || len(actions) != 1 {
		return environment.Transition{}, fmt.Errorf("tictactoe: expected one acting player, got %d", len(turns))
	}

	next := *gs
	seat := turns[0]
	reward := 0.0

	// Empty actions are the forced no-op substituted for invalid or missing
	// moves; the turn simply passes back to the same player.
	if actions[0] != "" {
		row, col, err := parseAction(actions[0])
		if err != nil || !isOpen(&next, seat, row, col) {
			return environment.Transition{}, fmt.Errorf("tictactoe: illegal action %q for seat %d", actions[0], seat)
		}
		next.Board[row][col] = markFor(seat)
		next.Turn = 1 - seat

		if winner := checkWinner(next.Board); winner != None {
			next.Winner = seat
			reward = 1
		} else if boardFull(next.Board) {
			next.Draw = true
		}
	}

	trans := environment.Transition{
		State:     &next,
		NextTurns: []int{next.Turn},
		Rewards:   []float64{reward},
	}
	if next.Winner >= 0 {
		trans.Terminal = true
		trans.Winners = []int{next.Winner}
	} else if next.Draw {
		trans.Terminal = true
		trans.Winners = []int{}
	}
	return trans, nil
}

func (e *Env) ValidActions(state environment.State, player int) []string {
	gs := state.(*GameState)
	if gs.Turn != player || gs.Winner >= 0 || gs.Draw {
		return nil
	}
	var actions []string
	for r := 0; r < boardSize; r++ {
		for c := 0; c < boardSize; c++ {
			if gs.Board[r][c] == None {
				actions = append(actions, fmt.Sprintf("%d,%d", r, c))
			}
		}
	}
	return actions
}

func (e *Env) IsValidAction(state environment.State, player int, action string) bool {
	gs := state.(*GameState)
	row, col, err := parseAction(action)
	if err != nil {
		return false
	}
	return isOpen(gs, player, row, col)
}

func (e *Env) StateToObservation(state environment.State, player int) environment.Observation {
	gs := state.(*GameState)
	board := make([][]Mark, boardSize)
	for r := range board {
		board[r] = make([]Mark, boardSize)
		copy(board[r], gs.Board[r][:])
	}
	return environment.Observation{
		"board": board,
		"turn":  gs.Turn,
	}
}

// SerializeState encodes the full game state for the table snapshot.
func (e *Env) SerializeState(state environment.State) ([]byte, error) {
	return json.Marshal(state)
}

// DeserializeState decodes a snapshot produced by SerializeState.
func (e *Env) DeserializeState(data []byte) (environment.State, error) {
	gs := &GameState{}
	if err := json.Unmarshal(data, gs); err != nil {
		return nil, fmt.Errorf("tictactoe: decode state: %w", err)
	}
	return gs, nil
}

// ComputeRanking ranks a drawn game as a shared first place.
func (e *Env) ComputeRanking(state environment.State, players []int, winners []int) map[int]int {
	gs := state.(*GameState)
	ranking := make(map[int]int, len(players))
	for _, p := range players {
		switch {
		case gs.Draw:
			ranking[p] = 0
		case gs.Winner == p:
			ranking[p] = 0
		default:
			ranking[p] = 1
		}
	}
	return ranking
}

func isOpen(gs *GameState, player, row, col int) bool {
	if gs.Turn != player || gs.Winner >= 0 || gs.Draw {
		return false
	}
	if row < 0 || row >= boardSize || col < 0 || col >= boardSize {
		return false
	}
	return gs.Board[row][col] == None
}

func parseAction(action string) (row, col int, err error) {
	if _, err = fmt.Sscanf(action, "%d,%d", &row, &col); err != nil {
		return 0, 0, fmt.Errorf("tictactoe: malformed action %q: %w", action, err)
	}
	return row, col, nil
}

func markFor(seat int) Mark {
	if seat == 0 {
		return PlayerX
	}
	return PlayerO
}

func checkWinner(board [boardSize][boardSize]Mark) Mark {
	for i := 0; i < boardSize; i++ {
		if board[i][0] != None && board[i][0] == board[i][1] && board[i][1] == board[i][2] {
			return board[i][0]
		}
		if board[0][i] != None && board[0][i] == board[1][i] && board[1][i] == board[2][i] {
			return board[0][i]
		}
	}
	if board[0][0] != None && board[0][0] == board[1][1] && board[1][1] == board[2][2] {
		return board[0][0]
	}
	if board[0][2] != None && board[0][2] == board[1][1] && board[1][1] == board[2][0] {
		return board[0][2]
	}
	return None
}

func boardFull(board [boardSize][boardSize]Mark) bool {
	for r := range board {
		for c := range board[r] {
			if board[r][c] == None {
				return false
			}
		}
	}
	return true
}
