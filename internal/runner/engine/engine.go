// Package engine supervises compile and run processes for a session.
package engine

import (
	"context"

	"liverun/internal/runner/spec"
)

// Engine starts supervised processes.
//
// Spawn never fails synchronously: a process that could not be started is
// returned already completed, with a spawn_failed status and the cause on its
// stderr stream.
type Engine interface {
	Spawn(ctx context.Context, ps spec.ProcessSpec) *Process
}
