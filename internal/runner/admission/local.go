package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "liverun/pkg/errors"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps per-client token buckets and open-session counts in memory.
type LocalLimiter struct {
	cfg   Config
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientState
}

type clientState struct {
	limiter  *rate.Limiter
	open     int
	lastSeen time.Time
}

// NewLocalLimiter creates an in-process limiter. MaxPerWindow tokens refill
// evenly over Window, and a full window's worth may be spent at once.
func NewLocalLimiter(cfg Config) *LocalLimiter {
	cfg = cfg.withDefaults()
	l := &LocalLimiter{
		cfg:     cfg,
		limit:   rate.Inf,
		clients: make(map[string]*clientState),
	}
	if cfg.MaxPerWindow > 0 {
		l.limit = rate.Every(cfg.Window / time.Duration(cfg.MaxPerWindow))
		l.burst = cfg.MaxPerWindow
	}
	return l
}

func (l *LocalLimiter) Acquire(ctx context.Context, client string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(client)
	if l.cfg.MaxConcurrent > 0 && st.open >= l.cfg.MaxConcurrent {
		return nil, pkgerrors.New(pkgerrors.TooManyRequests).
			WithMessage(fmt.Sprintf("too many open sessions for %s", client)).
			WithDetail("reason", ReasonConcurrency)
	}
	if !st.limiter.Allow() {
		return nil, pkgerrors.New(pkgerrors.TooManyRequests).
			WithMessage(fmt.Sprintf("connection rate exceeded for %s", client)).
			WithDetail("reason", ReasonRate)
	}
	st.open++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			st.open--
			st.lastSeen = time.Now()
		})
	}, nil
}

func (l *LocalLimiter) state(client string) *clientState {
	st, ok := l.clients[client]
	if !ok {
		st = &clientState{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = st
	}
	st.lastSeen = time.Now()
	return st
}

// Sweep forgets idle clients with no open sessions.
func (l *LocalLimiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	removed := 0
	for client, st := range l.clients {
		if st.open == 0 && !st.lastSeen.After(cutoff) {
			delete(l.clients, client)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (l *LocalLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep(interval)
			}
		}
	}()
}
