package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"liverun/internal/runner/spec"
)

func TestShellPrefix(t *testing.T) {
	tests := []struct {
		name   string
		limits spec.ResourceLimit
		want   string
	}{
		{
			name:   "no limits",
			limits: spec.ResourceLimit{WallTimeMs: 1000},
			want:   "",
		},
		{
			name:   "cpu rounds up",
			limits: spec.ResourceLimit{CPUTimeMs: 1500},
			want:   "ulimit -t 2 || exit 126\n",
		},
		{
			name: "all ceilings",
			limits: spec.ResourceLimit{
				CPUTimeMs:  2000,
				FileSizeMB: 8,
				OpenFiles:  64,
				MemoryMB:   256,
				PIDs:       32,
			},
			want: "ulimit -t 2 && ulimit -f 8192 && ulimit -n 64 && ulimit -u 32 || exit 126\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shellPrefix(tt.limits); got != tt.want {
				t.Fatalf("shellPrefix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCommandShellMode(t *testing.T) {
	cfg := Config{Limiter: LimiterShell}.withDefaults()
	ps := spec.ProcessSpec{
		Kind:    spec.KindRun,
		WorkDir: "/tmp/ws",
		Command: "python3 main.py",
		Limits:  spec.ResourceLimit{OpenFiles: 32},
	}
	argv, env, err := buildCommand(cfg, []string{"/bin/sh", "-c"}, ps)
	if err != nil {
		t.Fatalf("buildCommand: %v", err)
	}
	if len(argv) != 3 || argv[0] != "/bin/sh" || argv[1] != "-c" {
		t.Fatalf("unexpected argv: %q", argv)
	}
	if argv[2] != "ulimit -n 32 || exit 126\npython3 main.py" {
		t.Fatalf("unexpected script: %q", argv[2])
	}
	if !contains(env, "HOME=/tmp/ws") {
		t.Fatalf("HOME should point at the workspace: %q", env)
	}
}

func TestBuildCommandHelperMode(t *testing.T) {
	cfg := Config{Limiter: LimiterHelper, HelperPath: "/usr/local/bin/sandbox-init", Env: []string{"PATH=/bin"}}.withDefaults()
	ps := spec.ProcessSpec{
		Kind:    spec.KindCompile,
		WorkDir: "/tmp/ws",
		Command: "gcc main.c",
		Env:     []string{"CC=gcc"},
		Limits:  spec.ResourceLimit{CPUTimeMs: 3000, MemoryMB: 128},
	}
	argv, env, err := buildCommand(cfg, []string{"/bin/bash", "-lc"}, ps)
	if err != nil {
		t.Fatalf("buildCommand: %v", err)
	}
	want := []string{"/usr/local/bin/sandbox-init", "/bin/bash", "-lc", "gcc main.c"}
	if strings.Join(argv, "|") != strings.Join(want, "|") {
		t.Fatalf("argv = %q, want %q", argv, want)
	}
	if env[0] != "PATH=/bin" || !contains(env, "CC=gcc") {
		t.Fatalf("unexpected env: %q", env)
	}

	var payload string
	for _, kv := range env {
		if strings.HasPrefix(kv, spec.SandboxRequestEnv+"=") {
			payload = strings.TrimPrefix(kv, spec.SandboxRequestEnv+"=")
		}
	}
	var req spec.SandboxRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Limits.CPUTimeMs != 3000 || req.Limits.MemoryMB != 128 {
		t.Fatalf("limits not forwarded: %+v", req.Limits)
	}
}

func TestValidateProcessSpec(t *testing.T) {
	good := spec.ProcessSpec{Kind: spec.KindRun, WorkDir: "/tmp", Command: "true"}
	if err := validateProcessSpec(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []spec.ProcessSpec{
		{Kind: spec.KindRun, Command: "true"},
		{Kind: spec.KindRun, WorkDir: "/tmp", Command: "   "},
		{Kind: "link", WorkDir: "/tmp", Command: "true"},
	}
	for _, ps := range bad {
		if err := validateProcessSpec(ps); err == nil {
			t.Fatalf("expected error for %+v", ps)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Limiter: "seccomp"}).withDefaults().validate(); err == nil {
		t.Fatal("unknown limiter should be rejected")
	}
	if err := (Config{EnableCgroup: true}).withDefaults().validate(); err == nil {
		t.Fatal("cgroups without a root should be rejected")
	}
	cfg := Config{}.withDefaults()
	if cfg.Shell != defaultShell || cfg.Limiter != LimiterShell {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
