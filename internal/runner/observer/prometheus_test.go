package observer

import (
	"testing"
	"time"

	"liverun/internal/runner/result"
	"liverun/internal/runner/spec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheus(reg)

	rec.SessionOpened()
	rec.SessionOpened()
	rec.SessionClosed("Exited", 2*time.Second)
	rec.ProcessFinished("python", spec.KindRun, result.ExitStatus{Code: 0, WallTimeMs: 120, MemoryKB: 9000})
	rec.ProcessFinished("c", spec.KindCompile, result.ExitStatus{Code: 1, WallTimeMs: 300})
	rec.ProcessFinished("c", spec.KindRun, result.SpawnFailed())
	rec.ConnectionRejected("rate_limited")

	if got := testutil.ToFloat64(rec.activeSessions); got != 1 {
		t.Fatalf("active sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.sessionsTotal.WithLabelValues("Exited")); got != 1 {
		t.Fatalf("exited sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.processesTotal.WithLabelValues("c", "compile", "nonzero")); got != 1 {
		t.Fatalf("failed compiles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.processesTotal.WithLabelValues("c", "run", "spawn_failed")); got != 1 {
		t.Fatalf("spawn failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(rec.processDuration); got != 2 {
		t.Fatalf("duration series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(rec.connectionsRejected.WithLabelValues("rate_limited")); got != 1 {
		t.Fatalf("rejections = %v, want 1", got)
	}
}

func TestNoopSatisfiesRecorder(t *testing.T) {
	var rec Recorder = Noop{}
	rec.SessionOpened()
	rec.SessionClosed("Terminated", time.Second)
	rec.ProcessFinished("python", spec.KindRun, result.ExitStatus{})
	rec.ConnectionRejected("busy")
}
