// Package result defines how a supervised process ended.
package result

// ExitReason explains a non-ordinary termination.
type ExitReason string

const (
	ReasonNone        ExitReason = ""
	ReasonSignal      ExitReason = "signal"
	ReasonTimeout     ExitReason = "timeout"
	ReasonOutputLimit ExitReason = "output_limit"
	ReasonKilled      ExitReason = "killed"
	ReasonSpawnFailed ExitReason = "spawn_failed"
)

// ExitCodeSystemError is reported when no program ran at all
// (spawn failure, workspace failure). Real exit codes are 0-255.
const ExitCodeSystemError = -1

// SignalExitBase follows the shell convention: death by signal N exits with 128+N.
const SignalExitBase = 128

// ExitStatus captures the outcome and accounting of one process.
type ExitStatus struct {
	Code       int
	Signal     string
	Reason     ExitReason
	CPUTimeMs  int64
	WallTimeMs int64
	MemoryKB   int64
}

// OK reports a clean zero exit.
func (s ExitStatus) OK() bool {
	return s.Code == 0 && s.Reason == ReasonNone
}

// Killed reports whether the process was forcibly terminated by the supervisor.
func (s ExitStatus) Killed() bool {
	switch s.Reason {
	case ReasonTimeout, ReasonOutputLimit, ReasonKilled:
		return true
	}
	return false
}

// SpawnFailed creates the status of a process that never started.
func SpawnFailed() ExitStatus {
	return ExitStatus{Code: ExitCodeSystemError, Reason: ReasonSpawnFailed}
}

// Outcome is a short label for metrics and logs.
func (s ExitStatus) Outcome() string {
	switch {
	case s.Reason != ReasonNone:
		return string(s.Reason)
	case s.Code == 0:
		return "ok"
	default:
		return "nonzero"
	}
}
