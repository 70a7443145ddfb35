// Package session runs one submission per connection: workspace, compile,
// run, teardown, with live output and input in between.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"liverun/internal/runner/engine"
	"liverun/internal/runner/language"
	"liverun/internal/runner/mux"
	"liverun/internal/runner/observer"
	"liverun/internal/runner/protocol"
	"liverun/internal/runner/result"
	"liverun/internal/runner/spec"
	"liverun/internal/runner/workspace"
	appErr "liverun/pkg/errors"
	"liverun/pkg/utils/contextkey"
	"liverun/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultInboxSize     = 64
	defaultDrainGrace    = 2 * time.Second
	defaultTeardownGrace = 5 * time.Second
)

// Emitter delivers events to the client. It is called from the session loop
// and from output readers concurrently.
type Emitter interface {
	Emit(ctx context.Context, ev protocol.Outbound) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev protocol.Outbound) error

func (f EmitterFunc) Emit(ctx context.Context, ev protocol.Outbound) error {
	return f(ctx, ev)
}

// Workspaces allocates per-session directories.
type Workspaces interface {
	Create(ctx context.Context, sessionID, fileName, source string) (*workspace.Workspace, error)
	Destroy(ctx context.Context, ws *workspace.Workspace)
}

// Limits are the ceilings applied to every submission.
type Limits struct {
	Compile        spec.ResourceLimit `yaml:"compile"`
	Run            spec.ResourceLimit `yaml:"run"`
	MaxOutputBytes int64              `yaml:"maxOutputBytes"`
	MaxSourceBytes int                `yaml:"maxSourceBytes"`
}

// outputCeiling is the per-step OutputBytes when set, otherwise MaxOutputBytes.
func (l Limits) outputCeiling(step spec.ResourceLimit) int64 {
	if step.OutputBytes > 0 {
		return step.OutputBytes
	}
	return l.MaxOutputBytes
}

// Config wires a session to its collaborators.
type Config struct {
	Registry   *language.Registry
	Workspaces Workspaces
	Engine     engine.Engine
	Emitter    Emitter
	Limits     Limits
	Recorder   observer.Recorder

	InboxSize int
	// IdleTimeout ends a session that never receives a start; 0 waits forever.
	IdleTimeout time.Duration
	// DrainGrace bounds how long output is drained after a process exits.
	DrainGrace time.Duration
	// TeardownGrace bounds how long teardown waits for a killed process.
	TeardownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = defaultDrainGrace
	}
	if c.TeardownGrace <= 0 {
		c.TeardownGrace = defaultTeardownGrace
	}
	if c.Recorder == nil {
		c.Recorder = observer.Noop{}
	}
	if c.Emitter == nil {
		c.Emitter = EmitterFunc(func(context.Context, protocol.Outbound) error { return nil })
	}
	return c
}

// Session is the per-connection state machine. Only the goroutine inside Run
// changes its state.
type Session struct {
	id  string
	cfg Config

	inbox    chan protocol.Inbound
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
	silenced atomic.Bool

	mu     sync.Mutex
	state  State
	active *engine.Process

	// Owned by the loop.
	lang     language.Spec
	ws       *workspace.Workspace
	pump     *mux.Pump
	settled  <-chan struct{}
	killed   *engine.Process
	openedAt time.Time
}

// New creates a session in Idle.
func New(id string, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		id:       id,
		cfg:      cfg,
		inbox:    make(chan protocol.Inbound, cfg.InboxSize),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		state:    Idle,
	}
}

func (s *Session) ID() string {
	return s.id
}

// State returns the current state; safe from any goroutine.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed after Run returned and teardown completed.
func (s *Session) Done() <-chan struct{} {
	return s.finished
}

// Deliver hands a client event to the session loop.
func (s *Session) Deliver(ctx context.Context, msg protocol.Inbound) error {
	select {
	case <-s.finished:
		return appErr.New(appErr.SessionClosed)
	default:
	}
	select {
	case s.inbox <- msg:
		return nil
	case <-s.finished:
		return appErr.New(appErr.SessionClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the session as if the client had disconnected.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run drives the session until it reaches a terminal state, then tears it
// down. Cancelling ctx is a disconnect.
func (s *Session) Run(ctx context.Context) State {
	ctx = context.WithValue(ctx, contextkey.SessionID, s.id)
	runCtx, cancel := context.WithCancel(ctx)
	s.openedAt = time.Now()
	s.cfg.Recorder.SessionOpened()
	logger.Info(ctx, "session opened")

	defer close(s.finished)
	defer func() {
		cancel()
		s.teardown(ctx)
	}()

	var idle <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		timer := time.NewTimer(s.cfg.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-runCtx.Done():
			s.terminate(ctx, "disconnected")
		case <-s.stop:
			s.terminate(ctx, "stopped")
		case <-idle:
			if s.State() == Idle {
				s.terminate(ctx, "idle timeout")
			}
		case msg := <-s.inbox:
			s.handle(runCtx, msg)
		case <-s.settled:
			s.onProcessSettled(runCtx)
		}
		if state := s.State(); state.Terminal() {
			return state
		}
	}
}

func (s *Session) handle(ctx context.Context, msg protocol.Inbound) {
	switch msg.Type {
	case protocol.TypeStart:
		s.start(ctx, msg.Language, msg.Source)
	case protocol.TypeStdin:
		if s.State() != Running || s.pump == nil {
			return
		}
		if err := s.pump.Write(ctx, []byte(msg.Data)); err != nil {
			logger.Warn(ctx, "stdin dropped", zap.Int("bytes", len(msg.Data)), zap.Error(err))
		}
	case protocol.TypeEOF:
		if s.State() == Running && s.pump != nil {
			s.pump.CloseInput()
		}
	case protocol.TypeStop:
		s.terminate(ctx, "stopped")
	}
}

func (s *Session) start(ctx context.Context, langID, source string) {
	if state := s.State(); state != Idle {
		s.emit(ctx, protocol.Diagnostic(appErr.Busy(string(state)).Error()))
		return
	}
	lang, err := s.cfg.Registry.Lookup(langID)
	if err != nil {
		s.emit(ctx, protocol.Diagnostic(err.Error()))
		return
	}
	if limit := s.cfg.Limits.MaxSourceBytes; limit > 0 && len(source) > limit {
		s.emit(ctx, protocol.Diagnostic(appErr.Newf(appErr.CodeTooLarge, "Source exceeds %d bytes", limit).Error()))
		return
	}

	ws, err := s.cfg.Workspaces.Create(ctx, s.id, lang.SourceFile, source)
	if err != nil {
		logger.Error(ctx, "workspace setup failed", zap.String("language", lang.ID), zap.Error(err))
		s.emit(ctx, protocol.Diagnostic(appErr.GetError(err).Error()))
		s.finish(ctx, Failed, result.ExitStatus{Code: result.ExitCodeSystemError})
		return
	}
	s.lang = lang
	s.ws = ws
	logger.Info(ctx, "submission accepted", zap.String("language", lang.ID), zap.Int("source_bytes", len(source)))

	if !lang.NeedsCompile() {
		s.setState(Compiling, nil)
		s.spawn(ctx, Running, spec.KindRun, lang.RunCmd, s.cfg.Limits.Run)
		return
	}
	s.spawn(ctx, Compiling, spec.KindCompile, lang.CompileCmd, s.cfg.Limits.Compile)
}

// spawn starts a process and moves to state in the same step, so the active
// process is never visible outside Compiling or Running.
func (s *Session) spawn(ctx context.Context, state State, kind spec.ProcessKind, command string, limits spec.ResourceLimit) {
	proc := s.cfg.Engine.Spawn(ctx, spec.ProcessSpec{
		SessionID: s.id,
		Language:  s.lang.ID,
		Kind:      kind,
		WorkDir:   s.ws.Path,
		Command:   command,
		Limits:    limits,
	})
	s.setState(state, proc)
	s.pump = mux.Start(ctx, proc, s.forward(ctx), mux.Options{MaxOutputBytes: s.cfg.Limits.outputCeiling(limits)})
	s.settled = s.watchSettled(proc, s.pump)
}

// watchSettled closes once the process is reaped and its output drained.
// Descendants that escaped the process group get DrainGrace to release the pipes.
func (s *Session) watchSettled(proc *engine.Process, pump *mux.Pump) <-chan struct{} {
	settled := make(chan struct{})
	go func() {
		defer close(settled)
		<-proc.Done()
		timer := time.NewTimer(s.cfg.DrainGrace)
		defer timer.Stop()
		select {
		case <-pump.Done():
		case <-timer.C:
			pump.Abort()
			<-pump.Done()
		}
	}()
	return settled
}

func (s *Session) onProcessSettled(ctx context.Context) {
	s.mu.Lock()
	proc := s.active
	s.mu.Unlock()
	pump := s.pump
	s.settled = nil
	s.pump = nil
	if proc == nil {
		return
	}
	status := proc.Status()
	s.cfg.Recorder.ProcessFinished(s.lang.ID, proc.Kind(), status)
	logger.Info(ctx, "process finished",
		zap.String("kind", string(proc.Kind())),
		zap.Int("code", status.Code),
		zap.String("reason", string(status.Reason)),
		zap.Bool("killed", status.Killed()),
		zap.Bool("output_exceeded", pump != nil && pump.OutputExceeded()),
		zap.Int64("wall_ms", status.WallTimeMs),
		zap.Int64("wall_limit_ms", proc.Spec().Limits.WallTimeMs),
		zap.Int64("cpu_ms", status.CPUTimeMs),
	)

	if proc.Kind() == spec.KindCompile {
		if !status.OK() {
			s.finish(ctx, Failed, status)
			return
		}
		s.spawn(ctx, Running, spec.KindRun, s.lang.RunCmd, s.cfg.Limits.Run)
		return
	}
	s.finish(ctx, Exited, status)
}

// finish enters Exited or Failed, removes the workspace and sends the one exit event.
func (s *Session) finish(ctx context.Context, state State, status result.ExitStatus) {
	s.setState(state, nil)
	s.cfg.Workspaces.Destroy(ctx, s.ws)
	s.emit(ctx, protocol.Exit(status))
}

// terminate enters Terminated and kills whatever runs. No exit event follows.
func (s *Session) terminate(ctx context.Context, why string) {
	s.silenced.Store(true)
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	prev := s.state
	proc := s.active
	s.state = Terminated
	s.active = nil
	s.mu.Unlock()

	if proc != nil {
		proc.Kill()
		s.killed = proc
	}
	logger.Info(ctx, "session terminated", zap.String("cause", why), zap.String("from", string(prev)))
}

func (s *Session) teardown(ctx context.Context) {
	if s.killed != nil {
		timer := time.NewTimer(s.cfg.TeardownGrace)
		select {
		case <-s.killed.Done():
		case <-timer.C:
			logger.Warn(ctx, "killed process did not exit in time", zap.Int("pid", s.killed.Pid()))
		}
		timer.Stop()
	}
	s.cfg.Workspaces.Destroy(ctx, s.ws)
	state := s.State()
	s.cfg.Recorder.SessionClosed(string(state), time.Since(s.openedAt))
	logger.Info(ctx, "session closed", zap.String("state", string(state)))
}

func (s *Session) setState(state State, proc *engine.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.active = proc
}

func (s *Session) forward(ctx context.Context) mux.Sink {
	return func(stream string, data []byte) {
		if s.silenced.Load() {
			return
		}
		s.emit(ctx, protocol.Output(stream, data))
	}
}

func (s *Session) emit(ctx context.Context, ev protocol.Outbound) {
	if err := s.cfg.Emitter.Emit(ctx, ev); err != nil {
		logger.Debug(ctx, "emit failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
