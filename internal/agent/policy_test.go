package agent

import (
	"encoding/json"
	"testing"

	"github.com/colosseumrl/colosseumrl/internal/environment/tictactoe"
	"github.com/colosseumrl/colosseumrl/pkg/proto"
)

const (
	x = tictactoe.PlayerX
	o = tictactoe.PlayerO
	n = tictactoe.None
)

func TestFindWinningMove(t *testing.T) {
	tests := []struct {
		name    string
		board   board
		mark    tictactoe.Mark
		wantRow int
		wantCol int
		found   bool
	}{
		{
			name: "complete the row",
			board: board{
				{x, x, n},
				{o, o, n},
				{n, n, n},
			},
			mark:    x,
			wantRow: 0, wantCol: 2, found: true,
		},
		{
			name: "complete the column",
			board: board{
				{o, x, n},
				{o, x, n},
				{n, n, n},
			},
			mark:    o,
			wantRow: 2, wantCol: 0, found: true,
		},
		{
			name: "complete the diagonal",
			board: board{
				{x, o, n},
				{o, x, n},
				{n, n, n},
			},
			mark:    x,
			wantRow: 2, wantCol: 2, found: true,
		},
		{
			name:  "no winning move on empty board",
			board: board{},
			mark:  x,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, col, found := findWinningMove(tt.board, tt.mark)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if found && (row != tt.wantRow || col != tt.wantCol) {
				t.Errorf("move = %d,%d, want %d,%d", row, col, tt.wantRow, tt.wantCol)
			}
		})
	}
}

func TestHardMove_BlocksOpponent(t *testing.T) {
	b := board{
		{o, o, n},
		{x, n, n},
		{n, n, n},
	}
	row, col := hardMove(b, x)
	if row != 0 || col != 2 {
		t.Errorf("expected block at 0,2, got %d,%d", row, col)
	}
}

func TestHardMove_PrefersWinOverBlock(t *testing.T) {
	b := board{
		{o, o, n},
		{x, x, n},
		{n, n, n},
	}
	row, col := hardMove(b, x)
	if row != 1 || col != 2 {
		t.Errorf("expected winning move at 1,2, got %d,%d", row, col)
	}
}

func TestHardMove_TakesCenter(t *testing.T) {
	b := board{
		{x, n, n},
		{n, n, n},
		{n, n, n},
	}
	row, col := hardMove(b, o)
	if row != 1 || col != 1 {
		t.Errorf("expected center at 1,1, got %d,%d", row, col)
	}
}

func TestEasyMove_FullBoardHasNoMove(t *testing.T) {
	b := board{
		{x, o, x},
		{o, x, o},
		{o, x, o},
	}
	row, col := easyMove(b)
	if row != -1 || col != -1 {
		t.Errorf("expected no move on a full board, got %d,%d", row, col)
	}
}

func TestTicTacToePolicy_ActFromSnapshot(t *testing.T) {
	gs := tictactoe.GameState{Turn: 1, Winner: -1}
	gs.Board[0][0] = x
	gs.Board[0][1] = x
	snapshot, err := json.Marshal(gs)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	policy := &TicTacToePolicy{Difficulty: "hard"}
	action := policy.Act(&proto.MatchState{Snapshot: snapshot}, proto.SessionState{Seat: 1})
	if action != "0,2" {
		t.Errorf("expected blocking action 0,2, got %q", action)
	}
}

func TestTicTacToePolicy_NoSnapshotNoMove(t *testing.T) {
	policy := &TicTacToePolicy{Difficulty: "easy"}
	if action := policy.Act(&proto.MatchState{}, proto.SessionState{Seat: 0}); action != "" {
		t.Errorf("expected no action without a snapshot, got %q", action)
	}
}
