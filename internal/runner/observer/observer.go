// Package observer records session and process metrics.
package observer

import (
	"time"

	"liverun/internal/runner/result"
	"liverun/internal/runner/spec"
)

// Recorder receives lifecycle events. Implementations must be safe for concurrent use.
type Recorder interface {
	SessionOpened()
	SessionClosed(finalState string, lifetime time.Duration)
	ProcessFinished(language string, kind spec.ProcessKind, status result.ExitStatus)
	ConnectionRejected(reason string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) SessionOpened()                                              {}
func (Noop) SessionClosed(string, time.Duration)                         {}
func (Noop) ProcessFinished(string, spec.ProcessKind, result.ExitStatus) {}
func (Noop) ConnectionRejected(string)                                   {}
