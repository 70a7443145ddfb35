//go:build !linux

package engine

import (
	"context"
	"fmt"

	"liverun/internal/runner/spec"
)

type stubEngine struct{}

// NewEngine returns a supervisor whose processes always fail to spawn.
func NewEngine(cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return stubEngine{}, nil
}

func (stubEngine) Spawn(ctx context.Context, ps spec.ProcessSpec) *Process {
	return failedProcess(ps, fmt.Errorf("process supervision is only supported on linux"))
}
