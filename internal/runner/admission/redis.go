package admission

import (
	"context"
	"fmt"
	"sync"

	"liverun/internal/common/cache"
	pkgerrors "liverun/pkg/errors"
	"liverun/pkg/utils/logger"

	"go.uber.org/zap"
)

const keyPrefix = "liverun:admission"

// RedisLimiter shares connection budgets across server replicas.
type RedisLimiter struct {
	cache cache.BasicOps
	cfg   Config
}

// NewRedisLimiter creates a limiter backed by cacheClient.
func NewRedisLimiter(cacheClient cache.BasicOps, cfg Config) *RedisLimiter {
	return &RedisLimiter{cache: cacheClient, cfg: cfg.withDefaults()}
}

func (l *RedisLimiter) Acquire(ctx context.Context, client string) (func(), error) {
	if l.cache == nil {
		return nil, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("admission cache is unavailable")
	}
	if err := l.allowRate(ctx, client); err != nil {
		return l.failOpen(ctx, err)
	}
	release, err := l.acquireSlot(ctx, client)
	if err != nil {
		return l.failOpen(ctx, err)
	}
	return release, nil
}

// allowRate is a fixed-window counter: the first hit creates the key with the
// window as TTL, later hits increment it.
func (l *RedisLimiter) allowRate(ctx context.Context, client string) error {
	if l.cfg.MaxPerWindow <= 0 {
		return nil
	}
	key := fmt.Sprintf("%s:rate:%s", keyPrefix, client)

	ctxCache, cancel := context.WithTimeout(ctx, l.cfg.RedisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, l.cfg.Window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	var count int64 = 1
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		ttl, ttlErr := l.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, l.cfg.Window)
		}
	}
	if int(count) > l.cfg.MaxPerWindow {
		return pkgerrors.New(pkgerrors.TooManyRequests).
			WithMessage(fmt.Sprintf("connection rate exceeded for %s", client)).
			WithDetail("reason", ReasonRate)
	}
	return nil
}

// acquireSlot counts open sessions. The counter carries a TTL so a crashed
// replica cannot pin a client's slots forever.
func (l *RedisLimiter) acquireSlot(ctx context.Context, client string) (func(), error) {
	if l.cfg.MaxConcurrent <= 0 {
		return func() {}, nil
	}
	key := fmt.Sprintf("%s:open:%s", keyPrefix, client)

	ctxCache, cancel := context.WithTimeout(ctx, l.cfg.RedisTimeout)
	defer cancel()

	count, err := l.cache.Incr(ctxCache, key)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.CacheError, "session slot check failed")
	}
	_ = l.cache.Expire(ctxCache, key, slotTTL)
	if int(count) > l.cfg.MaxConcurrent {
		l.decr(ctx, key)
		return nil, pkgerrors.New(pkgerrors.TooManyRequests).
			WithMessage(fmt.Sprintf("too many open sessions for %s", client)).
			WithDetail("reason", ReasonConcurrency)
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.decr(context.Background(), key) })
	}, nil
}

func (l *RedisLimiter) decr(ctx context.Context, key string) {
	ctxCache, cancel := context.WithTimeout(ctx, l.cfg.RedisTimeout)
	defer cancel()
	if _, err := l.cache.Decr(ctxCache, key); err != nil {
		logger.Warn(ctx, "release session slot failed", zap.String("key", key), zap.Error(err))
	}
}

func (l *RedisLimiter) failOpen(ctx context.Context, err error) (func(), error) {
	if l.cfg.FailOpen && pkgerrors.Is(err, pkgerrors.CacheError) {
		logger.Warn(ctx, "admission store unavailable, admitting client", zap.Error(err))
		return func() {}, nil
	}
	return nil, err
}
