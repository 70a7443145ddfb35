package session

import "testing"

func TestStatePredicates(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
		active   bool
	}{
		{Idle, false, false},
		{Compiling, false, true},
		{Running, false, true},
		{Exited, true, false},
		{Failed, true, false},
		{Terminated, true, false},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v", tt.state, got)
		}
		if got := tt.state.Active(); got != tt.active {
			t.Errorf("%s.Active() = %v", tt.state, got)
		}
	}
}
