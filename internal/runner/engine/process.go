package engine

import (
	"io"
	"strings"
	"sync"

	"liverun/internal/runner/result"
	"liverun/internal/runner/spec"
)

// Process is one supervised child. The supervisor owns its stdio pipes; callers
// read Stdout/Stderr until EOF and write Stdin while the process lives.
type Process struct {
	spec   spec.ProcessSpec
	pid    int
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
	done   chan struct{}

	mu     sync.Mutex
	status result.ExitStatus
	reason result.ExitReason
	kill   func()
}

// Spec returns the specification the process was started from.
func (p *Process) Spec() spec.ProcessSpec { return p.spec }

// Kind reports whether this is a compile or a run process.
func (p *Process) Kind() spec.ProcessKind { return p.spec.Kind }

// Pid returns the process id, or 0 if the process never started.
func (p *Process) Pid() int { return p.pid }

func (p *Process) Stdin() io.WriteCloser { return p.stdin }
func (p *Process) Stdout() io.Reader      { return p.stdout }
func (p *Process) Stderr() io.Reader      { return p.stderr }

// Done is closed once the process has been reaped and its status is final.
func (p *Process) Done() <-chan struct{} { return p.done }

// Status returns the exit status. It is only meaningful after Done is closed.
func (p *Process) Status() result.ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Kill terminates the process and everything in its group.
func (p *Process) Kill() {
	p.KillWithReason(result.ReasonKilled)
}

// KillWithReason terminates the process, recording why. The first reason wins;
// later calls and calls after exit are no-ops.
func (p *Process) KillWithReason(reason result.ExitReason) {
	select {
	case <-p.done:
		return
	default:
	}
	p.mu.Lock()
	if p.reason != result.ReasonNone {
		p.mu.Unlock()
		return
	}
	p.reason = reason
	kill := p.kill
	p.mu.Unlock()
	if kill != nil {
		kill()
	}
}

func (p *Process) killReason() result.ExitReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *Process) finish(status result.ExitStatus) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	close(p.done)
}

func failedProcess(ps spec.ProcessSpec, err error) *Process {
	p := &Process{
		spec:   ps,
		stdin:  nopWriteCloser{io.Discard},
		stdout: strings.NewReader(""),
		stderr: strings.NewReader(err.Error() + "\n"),
		done:   make(chan struct{}),
	}
	p.finish(result.SpawnFailed())
	return p
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
