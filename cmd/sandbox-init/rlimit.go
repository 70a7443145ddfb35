//go:build linux

package main

import (
	"liverun/internal/runner/spec"

	"golang.org/x/sys/unix"
)

type rlimit struct {
	name     string
	resource int
	value    uint64
}

const mb = 1024 * 1024

// rlimitsFor translates the ceilings that map onto setrlimit. Wall time and
// output volume are enforced by the supervisor, memory by the cgroup.
func rlimitsFor(limits spec.ResourceLimit) []rlimit {
	var out []rlimit
	if secs := limits.CPUSeconds(); secs > 0 {
		out = append(out, rlimit{"cpu", unix.RLIMIT_CPU, uint64(secs)})
	}
	if limits.FileSizeMB > 0 {
		out = append(out, rlimit{"fsize", unix.RLIMIT_FSIZE, uint64(limits.FileSizeMB) * mb})
	}
	if limits.OpenFiles > 0 {
		out = append(out, rlimit{"nofile", unix.RLIMIT_NOFILE, uint64(limits.OpenFiles)})
	}
	if limits.PIDs > 0 {
		out = append(out, rlimit{"nproc", unix.RLIMIT_NPROC, uint64(limits.PIDs)})
	}
	return out
}
