package domain

import "testing"

func TestGameStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to GameStatus
		want     bool
	}{
		{GameWaiting, GameInProgress, true},
		{GameWaiting, GameCancelling, true},
		{GameWaiting, GameCompleted, false},
		{GameWaiting, GameResolving, false},
		{GameInProgress, GameResolving, true},
		{GameInProgress, GameCompleted, false},
		{GameInProgress, GameCancelling, false},
		{GameResolving, GameCompleted, true},
		{GameResolving, GameInProgress, false},
		{GameCancelling, GameCancelled, true},
		{GameCancelling, GameWaiting, false},
		{GameCompleted, GameWaiting, false},
		{GameCompleted, GameResolving, false},
		{GameCancelled, GameWaiting, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestGameStatus_Terminal(t *testing.T) {
	terminal := map[GameStatus]bool{
		GameWaiting:    false,
		GameInProgress: false,
		GameResolving:  false,
		GameCancelling: false,
		GameCompleted:  true,
		GameCancelled:  true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}
