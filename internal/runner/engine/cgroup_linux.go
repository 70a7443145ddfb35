//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"liverun/internal/runner/spec"
	"liverun/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// runCgroup is a cgroup v2 leaf holding exactly one supervised process tree.
type runCgroup struct {
	path string
	fd   int
}

func createRunCgroup(root string, ps spec.ProcessSpec) (*runCgroup, error) {
	if root == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	name := fmt.Sprintf("%s-%s-%d", ps.SessionID, ps.Kind, time.Now().UnixNano())
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create cgroup path: %w", err)
	}
	cg := &runCgroup{path: path, fd: -1}
	if err := cg.applyLimits(ps.Limits); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("apply cgroup limits: %w", err)
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("open cgroup: %w", err)
	}
	cg.fd = fd
	return cg, nil
}

func (cg *runCgroup) applyLimits(limits spec.ResourceLimit) error {
	pids := "max"
	if limits.PIDs > 0 {
		pids = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := cg.write("pids.max", pids); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		if err := cg.write("memory.max", strconv.FormatInt(limits.MemoryMB*1024*1024, 10)); err != nil {
			return err
		}
		if err := cg.write("memory.swap.max", "0"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (cg *runCgroup) kill() error {
	return cg.write("cgroup.kill", "1")
}

func (cg *runCgroup) oomKilled() bool {
	data, err := os.ReadFile(filepath.Join(cg.path, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			val, _ := strconv.ParseInt(fields[1], 10, 64)
			return val > 0
		}
	}
	return false
}

func (cg *runCgroup) memoryPeakKB() int64 {
	data, err := os.ReadFile(filepath.Join(cg.path, "memory.peak"))
	if err != nil {
		return 0
	}
	val, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return val / 1024
}

// release kills whatever is left in the cgroup and removes it. Safe on nil.
func (cg *runCgroup) release(ctx context.Context) {
	if cg == nil {
		return
	}
	if cg.fd >= 0 {
		_ = unix.Close(cg.fd)
		cg.fd = -1
	}
	_ = cg.kill()
	// rmdir fails with EBUSY until the kernel has finished tearing the members down.
	var err error
	for i := 0; i < 20; i++ {
		if err = os.Remove(cg.path); err == nil || errors.Is(err, os.ErrNotExist) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	logger.Warn(ctx, "remove cgroup failed", zap.String("cgroup", cg.path), zap.Error(err))
}

func (cg *runCgroup) write(name, value string) error {
	return os.WriteFile(filepath.Join(cg.path, name), []byte(value), 0o640)
}
