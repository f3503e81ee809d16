package tictactoe

import (
	"testing"

	"github.com/colosseumrl/colosseumrl/internal/environment"
)

func newEnv(t *testing.T) environment.Environment {
	t.Helper()
	env, err := environment.New("tictactoe", environment.Config{})
	if err != nil {
		t.Fatalf("failed to create environment: %v", err)
	}
	return env
}

func TestNewState_XMovesFirst(t *testing.T) {
	env := newEnv(t)
	state, turns, err := env.NewState(2)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if len(turns) != 1 || turns[0] != 0 {
		t.Errorf("expected seat 0 to move first, got %v", turns)
	}
	gs := state.(*GameState)
	if gs.Winner != -1 || gs.Draw {
		t.Errorf("unexpected initial state: %+v", gs)
	}
}

func TestNewState_RejectsWrongPlayerCount(t *testing.T) {
	env := newEnv(t)
	if _, _, err := env.NewState(3); err == nil {
		t.Error("expected error for 3 players")
	}
}

func TestNextState_AlternatesTurns(t *testing.T) {
	env := newEnv(t)
	state, turns, _ := env.NewState(2)

	trans, err := env.NextState(state, turns, []string{"0,0"})
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	if len(trans.NextTurns) != 1 || trans.NextTurns[0] != 1 {
		t.Errorf("expected seat 1 next, got %v", trans.NextTurns)
	}
	gs := trans.State.(*GameState)
	if gs.Board[0][0] != PlayerX {
		t.Errorf("expected X at 0,0, got %q", gs.Board[0][0])
	}
}

func TestNextState_EmptyActionPassesTurnBack(t *testing.T) {
	env := newEnv(t)
	state, turns, _ := env.NewState(2)

	trans, err := env.NextState(state, turns, []string{""})
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	if trans.Terminal {
		t.Error("no-op must not end the game")
	}
	if len(trans.NextTurns) != 1 || trans.NextTurns[0] != 0 {
		t.Errorf("expected turn to stay with seat 0, got %v", trans.NextTurns)
	}
}

func TestNextState_RejectsIllegalMoves(t *testing.T) {
	env := newEnv(t)
	state, turns, _ := env.NewState(2)

	tests := []struct {
		name   string
		action string
	}{
		{"garbage", "not-a-move"},
		{"out of bounds", "3,0"},
		{"negative", "-1,1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.NextState(state, turns, []string{tt.action}); err == nil {
				t.Errorf("expected error for action %q", tt.action)
			}
		})
	}

	// Occupied cell: play 1,1 then have seat 1 try the same cell.
	trans, _ := env.NextState(state, turns, []string{"1,1"})
	if _, err := env.NextState(trans.State, trans.NextTurns, []string{"1,1"}); err == nil {
		t.Error("expected error for occupied cell")
	}
}

func TestNextState_WinByRow(t *testing.T) {
	env := newEnv(t)
	state, turns, _ := env.NewState(2)

	// X: 0,0 0,1 0,2 wins; O plays the second row in between.
	moves := []string{"0,0", "1,0", "0,1", "1,1", "0,2"}
	var trans environment.Transition
	var err error
	for _, move := range moves {
		trans, err = env.NextState(state, turns, []string{move})
		if err != nil {
			t.Fatalf("move %q: %v", move, err)
		}
		state, turns = trans.State, trans.NextTurns
	}

	if !trans.Terminal {
		t.Fatal("expected terminal state after three in a row")
	}
	if len(trans.Winners) != 1 || trans.Winners[0] != 0 {
		t.Errorf("expected seat 0 to win, got %v", trans.Winners)
	}
	if trans.Rewards[0] != 1 {
		t.Errorf("expected winning reward 1, got %v", trans.Rewards)
	}
}

func TestNextState_Draw(t *testing.T) {
	env := newEnv(t)
	state, turns, _ := env.NewState(2)

	// X O X / X X O / O X O — a full board with no three in a row.
	moves := []string{"0,0", "0,1", "0,2", "1,2", "1,0", "2,0", "1,1", "2,2", "2,1"}
	var trans environment.Transition
	var err error
	for _, move := range moves {
		trans, err = env.NextState(state, turns, []string{move})
		if err != nil {
			t.Fatalf("move %q: %v", move, err)
		}
		state, turns = trans.State, trans.NextTurns
	}

	if !trans.Terminal {
		t.Fatal("expected terminal state on a full board")
	}
	if len(trans.Winners) != 0 {
		t.Errorf("expected no winners in a draw, got %v", trans.Winners)
	}
	gs := trans.State.(*GameState)
	if !gs.Draw {
		t.Error("expected draw flag set")
	}
}

func TestComputeRanking_DrawSharesFirst(t *testing.T) {
	env := newEnv(t)
	gs := &GameState{Winner: -1, Draw: true}

	ranks := environment.ComputeRanking(env, gs, []int{0, 1}, nil)
	if ranks[0] != 0 || ranks[1] != 0 {
		t.Errorf("expected shared first place on draw, got %v", ranks)
	}
}

func TestComputeRanking_WinnerFirst(t *testing.T) {
	env := newEnv(t)
	gs := &GameState{Winner: 1}

	ranks := environment.ComputeRanking(env, gs, []int{0, 1}, []int{1})
	if ranks[1] != 0 || ranks[0] != 1 {
		t.Errorf("expected seat 1 ranked 0, got %v", ranks)
	}
}

func TestValidActions_OnlyOpenCellsOnTurn(t *testing.T) {
	env := newEnv(t)
	state, _, _ := env.NewState(2)

	if got := env.ValidActions(state, 1); got != nil {
		t.Errorf("expected no actions off-turn, got %v", got)
	}
	actions := env.ValidActions(state, 0)
	if len(actions) != 9 {
		t.Errorf("expected 9 opening actions, got %d", len(actions))
	}
	// Every enumerated action must be individually valid.
	for _, action := range actions {
		if !env.IsValidAction(state, 0, action) {
			t.Errorf("ValidActions returned %q but IsValidAction rejects it", action)
		}
	}
}

func TestSerializeState_RoundTrip(t *testing.T) {
	env := newEnv(t).(*Env)
	state, turns, _ := env.NewState(2)
	trans, _ := env.NextState(state, turns, []string{"2,2"})

	data, err := env.SerializeState(trans.State)
	if err != nil {
		t.Fatalf("SerializeState: %v", err)
	}
	restored, err := env.DeserializeState(data)
	if err != nil {
		t.Fatalf("DeserializeState: %v", err)
	}
	gs := restored.(*GameState)
	if gs.Board[2][2] != PlayerX || gs.Turn != 1 {
		t.Errorf("round trip lost state: %+v", gs)
	}
}
