//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"liverun/internal/runner/result"
	"liverun/internal/runner/spec"
	"liverun/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type linuxEngine struct {
	cfg   Config
	shell []string
}

// NewEngine creates a Linux process supervisor.
func NewEngine(cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	shell, err := shlex.Split(cfg.Shell)
	if err != nil {
		return nil, fmt.Errorf("parse shell: %w", err)
	}
	if len(shell) == 0 {
		return nil, fmt.Errorf("shell is required")
	}
	return &linuxEngine{cfg: cfg, shell: shell}, nil
}

func (e *linuxEngine) Spawn(ctx context.Context, ps spec.ProcessSpec) *Process {
	if err := validateProcessSpec(ps); err != nil {
		return failedProcess(ps, err)
	}
	argv, env, err := buildCommand(e.cfg, e.shell, ps)
	if err != nil {
		return failedProcess(ps, err)
	}

	var cg *runCgroup
	if e.cfg.EnableCgroup {
		cg, err = createRunCgroup(e.cfg.CgroupRoot, ps)
		if err != nil {
			return failedProcess(ps, fmt.Errorf("create cgroup: %w", err))
		}
	}

	pipes, err := openPipes()
	if err != nil {
		cg.release(ctx)
		return failedProcess(ps, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = ps.WorkDir
	cmd.Env = env
	cmd.Stdin = pipes.stdinR
	cmd.Stdout = pipes.stdoutW
	cmd.Stderr = pipes.stderrW
	cmd.SysProcAttr = buildSysProcAttr(cg)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pipes.closeAll()
		cg.release(ctx)
		return failedProcess(ps, fmt.Errorf("start %s: %w", argv[0], err))
	}
	pipes.closeChildEnds()

	pid := cmd.Process.Pid
	p := &Process{
		spec:   ps,
		pid:    pid,
		stdin:  pipes.stdinW,
		stdout: pipes.stdoutR,
		stderr: pipes.stderrR,
		done:   make(chan struct{}),
	}
	p.kill = func() {
		killProcessGroup(pid)
		if cg != nil {
			if err := cg.kill(); err != nil {
				logger.Debug(ctx, "kill cgroup failed", zap.String("cgroup", cg.path), zap.Error(err))
			}
		}
	}

	logger.Debug(ctx, "process started",
		zap.String("kind", string(ps.Kind)),
		zap.String("language", ps.Language),
		zap.Int("pid", pid),
	)

	go e.watch(ctx, p)
	go e.wait(ctx, p, cmd, cg, start)
	return p
}

// watch enforces the wall-clock ceiling and context cancellation.
func (e *linuxEngine) watch(ctx context.Context, p *Process) {
	var timeout <-chan time.Time
	if wall := p.spec.Limits.WallTime(); wall > 0 {
		timer := time.NewTimer(wall)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		p.KillWithReason(result.ReasonKilled)
	case <-timeout:
		p.KillWithReason(result.ReasonTimeout)
	}
}

func (e *linuxEngine) wait(ctx context.Context, p *Process, cmd *exec.Cmd, cg *runCgroup, start time.Time) {
	// The zombie leader keeps the group id reserved until it is reaped, so
	// stragglers still holding our pipes are killed before Wait.
	waitExited(p.pid)
	killProcessGroup(p.pid)

	waitErr := cmd.Wait()
	status := exitStatus(cmd.ProcessState, p.killReason())
	status.WallTimeMs = time.Since(start).Milliseconds()
	if cg != nil {
		if peak := cg.memoryPeakKB(); peak > 0 {
			status.MemoryKB = peak
		}
		if cg.oomKilled() && status.Reason == result.ReasonSignal {
			logger.Info(ctx, "process killed by cgroup oom", zap.String("cgroup", cg.path))
		}
		cg.release(ctx)
	}
	_ = p.stdin.Close()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		logger.Warn(ctx, "wait process failed", zap.Int("pid", p.pid), zap.Error(waitErr))
	}
	logger.Debug(ctx, "process finished",
		zap.String("kind", string(p.spec.Kind)),
		zap.Int("code", status.Code),
		zap.String("reason", string(status.Reason)),
		zap.Int64("wall_ms", status.WallTimeMs),
	)
	p.finish(status)
}

func waitExited(pid int) {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			return
		}
	}
}

func exitStatus(state *os.ProcessState, reason result.ExitReason) result.ExitStatus {
	status := result.ExitStatus{Code: result.ExitCodeSystemError, Reason: reason}
	if state == nil {
		return status
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		status.Code = result.SignalExitBase + int(sig)
		status.Signal = unix.SignalName(sig)
		if status.Reason == result.ReasonNone {
			status.Reason = result.ReasonSignal
		}
	} else {
		status.Code = state.ExitCode()
	}
	if reason == result.ReasonTimeout {
		status.Code = result.SignalExitBase + int(unix.SIGKILL)
		status.Signal = unix.SignalName(unix.SIGKILL)
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		status.CPUTimeMs = timevalMs(usage.Utime) + timevalMs(usage.Stime)
		status.MemoryKB = usage.Maxrss
	}
	return status
}

func timevalMs(tv syscall.Timeval) int64 {
	return tv.Sec*1000 + int64(tv.Usec)/1000
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}

func buildSysProcAttr(cg *runCgroup) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if cg != nil {
		attr.UseCgroupFD = true
		attr.CgroupFD = cg.fd
	}
	return attr
}

type stdioPipes struct {
	stdinR, stdinW   *os.File
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

func openPipes() (*stdioPipes, error) {
	p := &stdioPipes{}
	var err error
	if p.stdinR, p.stdinW, err = os.Pipe(); err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	if p.stdoutR, p.stdoutW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if p.stderrR, p.stderrW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	return p, nil
}

func (p *stdioPipes) closeChildEnds() {
	closeFiles(p.stdinR, p.stdoutW, p.stderrW)
}

func (p *stdioPipes) closeAll() {
	closeFiles(p.stdinR, p.stdinW, p.stdoutR, p.stdoutW, p.stderrR, p.stderrW)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
