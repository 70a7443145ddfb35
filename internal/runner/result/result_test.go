package result

import "testing"

func TestOutcome(t *testing.T) {
	tests := []struct {
		name   string
		status ExitStatus
		want   string
		killed bool
	}{
		{"clean", ExitStatus{Code: 0}, "ok", false},
		{"nonzero", ExitStatus{Code: 2}, "nonzero", false},
		{"timeout", ExitStatus{Code: 137, Reason: ReasonTimeout}, "timeout", true},
		{"output limit", ExitStatus{Code: 137, Reason: ReasonOutputLimit}, "output_limit", true},
		{"signal", ExitStatus{Code: 139, Reason: ReasonSignal}, "signal", false},
		{"spawn failed", SpawnFailed(), "spawn_failed", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Outcome(); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
			if got := tt.status.Killed(); got != tt.killed {
				t.Errorf("Killed() = %v, want %v", got, tt.killed)
			}
		})
	}
	if !(ExitStatus{}).OK() {
		t.Error("zero status should be OK")
	}
	if SpawnFailed().Code != ExitCodeSystemError {
		t.Error("spawn failure must report the system error code")
	}
}
