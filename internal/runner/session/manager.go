package session

import (
	"context"
	"sync"

	appErr "liverun/pkg/errors"
	"liverun/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager tracks live sessions so the server can stop them on shutdown.
type Manager struct {
	base Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewManager creates a manager whose sessions share base; the emitter is per session.
func NewManager(base Config) *Manager {
	return &Manager{
		base:     base,
		sessions: make(map[string]*Session),
	}
}

// Open registers a new Idle session. Every opened session must be passed to Run.
func (m *Manager) Open(emitter Emitter) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("server is shutting down")
	}
	cfg := m.base
	cfg.Emitter = emitter
	s := New(uuid.NewString(), cfg)
	m.sessions[s.ID()] = s
	m.wg.Add(1)
	return s, nil
}

// Run drives s to completion and unregisters it.
func (m *Manager) Run(ctx context.Context, s *Session) State {
	m.mu.Lock()
	_, ok := m.sessions[s.ID()]
	m.mu.Unlock()
	if !ok {
		return s.State()
	}

	defer func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
		m.wg.Done()
	}()
	return s.Run(ctx)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown refuses new sessions, terminates live ones and waits for their
// teardown or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	logger.Info(ctx, "terminating sessions", zap.Int("count", len(live)))
	for _, s := range live {
		s.Stop()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "sessions still tearing down: %d", m.Len())
	}
}
