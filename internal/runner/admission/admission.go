// Package admission decides whether a client may open another session.
package admission

import (
	"context"
	"time"
)

// Config bounds how fast and how many sessions one client may open.
type Config struct {
	// Enabled turns admission control on.
	Enabled bool `yaml:"enabled"`
	// Window and MaxPerWindow form a fixed-window connection rate per client.
	Window       time.Duration `yaml:"window"`
	MaxPerWindow int           `yaml:"maxPerWindow"`
	// MaxConcurrent caps open sessions per client; 0 disables the cap.
	MaxConcurrent int `yaml:"maxConcurrent"`
	// RedisTimeout bounds each Redis round trip.
	RedisTimeout time.Duration `yaml:"redisTimeout"`
	// FailOpen admits clients when the backing store is unreachable.
	FailOpen bool `yaml:"failOpen"`
}

const (
	defaultWindow       = time.Minute
	defaultRedisTimeout = 200 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.RedisTimeout <= 0 {
		c.RedisTimeout = defaultRedisTimeout
	}
	return c
}

// Limiter admits sessions. A successful Acquire must be paired with one call
// to the returned release func when the session ends.
type Limiter interface {
	Acquire(ctx context.Context, client string) (release func(), err error)
}

// Unlimited admits everyone.
type Unlimited struct{}

func (Unlimited) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
