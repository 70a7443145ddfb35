//go:build linux

package main

import (
	"testing"

	"liverun/internal/runner/spec"

	"golang.org/x/sys/unix"
)

func TestDecodeRequest(t *testing.T) {
	req, err := decodeRequest(`{"limits":{"cpuTimeMs":1500,"memoryMB":256}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Limits.CPUTimeMs != 1500 || req.Limits.MemoryMB != 256 {
		t.Fatalf("unexpected limits %+v", req.Limits)
	}

	if req, err := decodeRequest(""); err != nil || req.Limits != (spec.ResourceLimit{}) {
		t.Fatalf("empty request should mean no limits, got %+v, %v", req, err)
	}
	if _, err := decodeRequest("{"); err == nil {
		t.Fatal("expected error for malformed request")
	}
}

func TestRlimitsFor(t *testing.T) {
	got := rlimitsFor(spec.ResourceLimit{
		CPUTimeMs:   1500,
		WallTimeMs:  9000,
		MemoryMB:    256,
		FileSizeMB:  8,
		OpenFiles:   64,
		PIDs:        32,
		OutputBytes: 1 << 20,
	})
	want := map[int]uint64{
		unix.RLIMIT_CPU:    2,
		unix.RLIMIT_FSIZE:  8 * mb,
		unix.RLIMIT_NOFILE: 64,
		unix.RLIMIT_NPROC:  32,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d limits, want %d: %+v", len(got), len(want), got)
	}
	for _, l := range got {
		if want[l.resource] != l.value {
			t.Errorf("%s = %d, want %d", l.name, l.value, want[l.resource])
		}
	}

	if len(rlimitsFor(spec.ResourceLimit{WallTimeMs: 1000})) != 0 {
		t.Fatal("wall time is not an rlimit")
	}
}

func TestRunRequiresCommand(t *testing.T) {
	if err := run(nil); err == nil {
		t.Fatal("expected error without a command")
	}
}
