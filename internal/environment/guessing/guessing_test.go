package guessing

import (
	"strconv"
	"testing"

	"github.com/colosseumrl/colosseumrl/internal/environment"
)

func TestNextState_ExactGuessWins(t *testing.T) {
	env, err := environment.New("guessing", environment.Config{})
	if err != nil {
		t.Fatalf("failed to create environment: %v", err)
	}
	state, turns, _ := env.NewState(2)
	target := state.(*GameState).Target

	trans, err := env.NextState(state, turns, []string{strconv.Itoa(target)})
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	if !trans.Terminal {
		t.Fatal("expected exact guess to end the game")
	}
	if len(trans.Winners) != 1 || trans.Winners[0] != 0 {
		t.Errorf("expected seat 0 to win, got %v", trans.Winners)
	}
	if trans.Rewards[0] != 0 {
		t.Errorf("expected zero distance reward, got %v", trans.Rewards)
	}
}

func TestNextState_RewardIsNegativeDistance(t *testing.T) {
	env, _ := environment.New("guessing", environment.Config{})
	state, turns, _ := env.NewState(2)
	gs := state.(*GameState)
	gs.Target = 40

	trans, err := env.NextState(state, turns, []string{"50"})
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	if trans.Terminal {
		t.Error("wrong guess must not end the game")
	}
	if trans.Rewards[0] != -10 {
		t.Errorf("expected reward -10, got %v", trans.Rewards)
	}
	if len(trans.NextTurns) != 1 || trans.NextTurns[0] != 1 {
		t.Errorf("expected turn to pass to seat 1, got %v", trans.NextTurns)
	}
}

func TestNextState_NoOpBurnsTurn(t *testing.T) {
	env, _ := environment.New("guessing", environment.Config{})
	state, turns, _ := env.NewState(2)

	trans, err := env.NextState(state, turns, []string{""})
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	if trans.Terminal {
		t.Error("no-op must not end the game")
	}
	if trans.Rewards[0] != -100 {
		t.Errorf("expected worst-case reward -100, got %v", trans.Rewards)
	}
	if trans.NextTurns[0] != 1 {
		t.Errorf("expected turn to pass to seat 1, got %v", trans.NextTurns)
	}
}

func TestConfigurablePlayerCount(t *testing.T) {
	env, err := environment.New("guessing", environment.Config{Players: 4})
	if err != nil {
		t.Fatalf("failed to create environment: %v", err)
	}
	if env.MinPlayers() != 4 {
		t.Errorf("expected 4 players, got %d", env.MinPlayers())
	}

	state, _, _ := env.NewState(4)
	trans, _ := env.NextState(state, []int{3}, []string{"1"})
	if !trans.Terminal && trans.NextTurns[0] != 0 {
		t.Errorf("expected turn to wrap to seat 0, got %v", trans.NextTurns)
	}

	if _, err := environment.New("guessing", environment.Config{Players: 1}); err == nil {
		t.Error("expected error for a single player")
	}
}

func TestIsValidAction(t *testing.T) {
	env, _ := environment.New("guessing", environment.Config{})
	state, _, _ := env.NewState(2)

	tests := []struct {
		action string
		want   bool
	}{
		{"0", true},
		{"99", true},
		{"100", false},
		{"-1", false},
		{"abc", false},
	}
	for _, tt := range tests {
		if got := env.IsValidAction(state, 0, tt.action); got != tt.want {
			t.Errorf("IsValidAction(%q) = %v, want %v", tt.action, got, tt.want)
		}
	}
}
