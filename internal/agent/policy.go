package agent

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/colosseumrl/colosseumrl/internal/environment/tictactoe"
	"github.com/colosseumrl/colosseumrl/pkg/proto"
)

// TicTacToePolicy plays tic-tac-toe from the state snapshot at one of three
// difficulty levels.
type TicTacToePolicy struct {
	Difficulty string // "easy", "medium" or "hard"
}

func (p *TicTacToePolicy) Act(state *proto.MatchState, me proto.SessionState) string {
	var gs tictactoe.GameState
	if len(state.Snapshot) == 0 || json.Unmarshal(state.Snapshot, &gs) != nil {
		return ""
	}

	mark := tictactoe.PlayerX
	if me.Seat == 1 {
		mark = tictactoe.PlayerO
	}

	row, col := nextMove(gs.Board, mark, p.Difficulty)
	if row == -1 {
		return ""
	}
	return fmt.Sprintf("%d,%d", row, col)
}

type board = [3][3]tictactoe.Mark

// nextMove determines the next move based on the specified difficulty.
func nextMove(b board, mark tictactoe.Mark, difficulty string) (row, col int) {
	switch difficulty {
	case "easy":
		return easyMove(b)
	case "medium":
		return mediumMove(b, mark)
	default:
		return hardMove(b, mark)
	}
}

// easyMove makes a completely random move.
func easyMove(b board) (row, col int) {
	var availableMoves [][2]int
	for r := range b {
		for c, cell := range b[r] {
			if cell == tictactoe.None {
				availableMoves = append(availableMoves, [2]int{r, c})
			}
		}
	}

	if len(availableMoves) == 0 {
		return -1, -1 // No moves left
	}

	randomMove := availableMoves[rand.Intn(len(availableMoves))]
	return randomMove[0], randomMove[1]
}

// mediumMove will win if it can, block if it must, otherwise move randomly.
func mediumMove(b board, mark tictactoe.Mark) (row, col int) {
	opponent := opponentOf(mark)

	// 1. Win: Check if we can win in the next move
	nextRow, nextCol, canWin := findWinningMove(b, mark)
	if canWin {
		return nextRow, nextCol
	}

	// 2. Block: Check if the opponent is about to win and block them
	nextRow, nextCol, canBlock := findWinningMove(b, opponent)
	if canBlock {
		return nextRow, nextCol
	}

	// 3. Random: Otherwise, make a random move
	return easyMove(b)
}

// hardMove implements the optimal strategy.
func hardMove(b board, mark tictactoe.Mark) (row, col int) {
	opponent := opponentOf(mark)

	// 1. Win: Check if we can win in the next move
	nextRow, nextCol, canWin := findWinningMove(b, mark)
	if canWin {
		return nextRow, nextCol
	}

	// 2. Block: Check if the opponent is about to win and block them
	nextRow, nextCol, canBlock := findWinningMove(b, opponent)
	if canBlock {
		return nextRow, nextCol
	}

	// 3. Center: Take the center if it's available
	if b[1][1] == tictactoe.None {
		return 1, 1
	}

	// 4. Corners: Take an available corner randomly
	var availableCorners [][2]int
	corners := [][2]int{{0, 0}, {0, 2}, {2, 0}, {2, 2}}
	for _, corner := range corners {
		if b[corner[0]][corner[1]] == tictactoe.None {
			availableCorners = append(availableCorners, corner)
		}
	}
	if len(availableCorners) > 0 {
		randomCorner := availableCorners[rand.Intn(len(availableCorners))]
		return randomCorner[0], randomCorner[1]
	}

	// 5. Sides: Take any available side randomly
	var availableSides [][2]int
	sides := [][2]int{{0, 1}, {1, 0}, {1, 2}, {2, 1}}
	for _, side := range sides {
		if b[side[0]][side[1]] == tictactoe.None {
			availableSides = append(availableSides, side)
		}
	}
	if len(availableSides) > 0 {
		randomSide := availableSides[rand.Intn(len(availableSides))]
		return randomSide[0], randomSide[1]
	}

	return -1, -1
}

// findWinningMove checks if the given mark can win in one move and returns
// that move.
func findWinningMove(b board, mark tictactoe.Mark) (row, col int, found bool) {
	for r := range b {
		for c := range b[r] {
			if b[r][c] != tictactoe.None {
				continue
			}
			b[r][c] = mark
			if wins(b, mark) {
				return r, c, true
			}
			b[r][c] = tictactoe.None
		}
	}
	return -1, -1, false
}

func wins(b board, mark tictactoe.Mark) bool {
	for i := 0; i < 3; i++ {
		if b[i][0] == mark && b[i][1] == mark && b[i][2] == mark {
			return true
		}
		if b[0][i] == mark && b[1][i] == mark && b[2][i] == mark {
			return true
		}
	}
	if b[0][0] == mark && b[1][1] == mark && b[2][2] == mark {
		return true
	}
	return b[0][2] == mark && b[1][1] == mark && b[2][0] == mark
}

func opponentOf(mark tictactoe.Mark) tictactoe.Mark {
	if mark == tictactoe.PlayerX {
		return tictactoe.PlayerO
	}
	return tictactoe.PlayerX
}
