// Package spec defines the process specification and resource ceilings.
package spec

import "time"

// ProcessKind identifies which step of a submission a process serves.
type ProcessKind string

const (
	KindCompile ProcessKind = "compile"
	KindRun     ProcessKind = "run"
)

// ResourceLimit describes hard ceilings enforced on one process.
// Zero means "no ceiling" for every field.
type ResourceLimit struct {
	CPUTimeMs   int64 `yaml:"cpuTimeMs" json:"cpuTimeMs,omitempty"`
	WallTimeMs  int64 `yaml:"wallTimeMs" json:"wallTimeMs,omitempty"`
	MemoryMB    int64 `yaml:"memoryMB" json:"memoryMB,omitempty"`
	FileSizeMB  int64 `yaml:"fileSizeMB" json:"fileSizeMB,omitempty"`
	OpenFiles   int64 `yaml:"openFiles" json:"openFiles,omitempty"`
	PIDs        int64 `yaml:"pids" json:"pids,omitempty"`
	OutputBytes int64 `yaml:"outputBytes" json:"outputBytes,omitempty"`
}

// WallTime returns the wall-clock ceiling as a duration.
func (l ResourceLimit) WallTime() time.Duration {
	return durationFromMs(l.WallTimeMs)
}

// CPUSeconds rounds the CPU ceiling up to whole seconds, the granularity of RLIMIT_CPU.
func (l ResourceLimit) CPUSeconds() int64 {
	if l.CPUTimeMs <= 0 {
		return 0
	}
	return (l.CPUTimeMs + 999) / 1000
}

// Merge returns base with every positive field of override applied on top.
func Merge(base, override ResourceLimit) ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.FileSizeMB > 0 {
		base.FileSizeMB = override.FileSizeMB
	}
	if override.OpenFiles > 0 {
		base.OpenFiles = override.OpenFiles
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	if override.OutputBytes > 0 {
		base.OutputBytes = override.OutputBytes
	}
	return base
}

// ProcessSpec is everything the supervisor needs to start one process.
type ProcessSpec struct {
	SessionID string
	Language  string
	Kind      ProcessKind
	WorkDir   string
	// Command is a shell command line, executed through the configured shell.
	Command string
	Env     []string
	Limits  ResourceLimit
}

// SandboxRequestEnv carries a JSON SandboxRequest from the supervisor to sandbox-init.
const SandboxRequestEnv = "LIVERUN_SANDBOX_REQUEST"

// SandboxRequest is what sandbox-init applies before exec'ing its arguments.
type SandboxRequest struct {
	Limits ResourceLimit `json:"limits"`
}

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
