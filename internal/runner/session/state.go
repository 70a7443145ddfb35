package session

// State is a session's position in its lifecycle.
type State string

const (
	Idle       State = "Idle"
	Compiling  State = "Compiling"
	Running    State = "Running"
	Exited     State = "Exited"
	Failed     State = "Failed"
	Terminated State = "Terminated"
)

// Terminal reports whether the session can make no further progress.
func (s State) Terminal() bool {
	switch s {
	case Exited, Failed, Terminated:
		return true
	}
	return false
}

// Active reports whether a process may be alive in this state.
func (s State) Active() bool {
	return s == Compiling || s == Running
}
