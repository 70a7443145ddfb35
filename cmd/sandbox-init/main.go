//go:build linux

// Command sandbox-init applies resource limits to itself and then execs its
// arguments. The supervisor passes the limits as JSON in LIVERUN_SANDBOX_REQUEST.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"liverun/internal/runner/spec"

	"golang.org/x/sys/unix"
)

// exitSetupFailed matches the shell limiter's status for a limit that could not be applied.
const exitSetupFailed = 126

func main() {
	if err := run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "sandbox-init: "+err.Error())
		os.Exit(exitSetupFailed)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("command is required")
	}
	req, err := decodeRequest(os.Getenv(spec.SandboxRequestEnv))
	if err != nil {
		return err
	}
	if err := os.Unsetenv(spec.SandboxRequestEnv); err != nil {
		return fmt.Errorf("unset request: %w", err)
	}
	if err := applyRlimits(req.Limits); err != nil {
		return err
	}

	cmdPath, err := exec.LookPath(args[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(cmdPath, args, os.Environ())
}

func decodeRequest(raw string) (spec.SandboxRequest, error) {
	var req spec.SandboxRequest
	if raw == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func applyRlimits(limits spec.ResourceLimit) error {
	for _, l := range rlimitsFor(limits) {
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", l.name, err)
		}
	}
	return nil
}
