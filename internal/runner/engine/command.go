package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"liverun/internal/runner/spec"
)

// shellPrefix renders the ulimit calls that bound a shell-launched command.
// File sizes are in KiB, the unit bash uses for -f. Memory is left to the
// cgroup: an address-space limit aborts JIT runtimes that reserve large
// virtual ranges up front.
func shellPrefix(limits spec.ResourceLimit) string {
	var calls []string
	add := func(flag string, value int64) {
		calls = append(calls, "ulimit "+flag+" "+strconv.FormatInt(value, 10))
	}
	if seconds := limits.CPUSeconds(); seconds > 0 {
		add("-t", seconds)
	}
	if limits.FileSizeMB > 0 {
		add("-f", limits.FileSizeMB*1024)
	}
	if limits.OpenFiles > 0 {
		add("-n", limits.OpenFiles)
	}
	if limits.PIDs > 0 {
		add("-u", limits.PIDs)
	}
	if len(calls) == 0 {
		return ""
	}
	return strings.Join(calls, " && ") + " || exit 126\n"
}

// buildCommand returns argv and environment for ps under the given limiter mode.
func buildCommand(cfg Config, shell []string, ps spec.ProcessSpec) ([]string, []string, error) {
	script := ps.Command
	if cfg.Limiter == LimiterShell {
		script = shellPrefix(ps.Limits) + script
	}
	argv := make([]string, 0, len(shell)+2)
	argv = append(argv, shell...)
	argv = append(argv, script)

	env := buildEnv(cfg.Env, ps)
	if cfg.Limiter == LimiterHelper {
		payload, err := json.Marshal(spec.SandboxRequest{Limits: ps.Limits})
		if err != nil {
			return nil, nil, fmt.Errorf("encode sandbox request: %w", err)
		}
		env = append(env, spec.SandboxRequestEnv+"="+string(payload))
		argv = append([]string{cfg.HelperPath}, argv...)
	}
	return argv, env, nil
}

func buildEnv(base []string, ps spec.ProcessSpec) []string {
	env := make([]string, 0, len(base)+len(ps.Env)+3)
	if len(base) == 0 {
		env = append(env, defaultPath)
		if lang := os.Getenv("LANG"); lang != "" {
			env = append(env, "LANG="+lang)
		}
	} else {
		env = append(env, base...)
	}
	env = append(env, "HOME="+ps.WorkDir)
	env = append(env, ps.Env...)
	return env
}

func validateProcessSpec(ps spec.ProcessSpec) error {
	if ps.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if strings.TrimSpace(ps.Command) == "" {
		return fmt.Errorf("command is required")
	}
	switch ps.Kind {
	case spec.KindCompile, spec.KindRun:
	default:
		return fmt.Errorf("unknown process kind %q", ps.Kind)
	}
	return nil
}
