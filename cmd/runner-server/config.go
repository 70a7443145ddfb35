package main

import (
	"fmt"
	"os"
	"time"

	"liverun/internal/common/cache"
	"liverun/internal/common/http/middleware"
	"liverun/internal/runner/admission"
	"liverun/internal/runner/engine"
	"liverun/internal/runner/language"
	"liverun/internal/runner/session"
	"liverun/internal/runner/spec"
	"liverun/internal/runner/transport"
	"liverun/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultMaxHeaderBytes  = 1 << 20

	defaultCompileWallMs  = 10000
	defaultRunWallMs      = 10000
	defaultMaxOutputBytes = 1 << 20
	defaultMaxSourceBytes = 256 << 10
	defaultSessionIdle    = 5 * time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxHeaderBytes  int           `yaml:"maxHeaderBytes"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// WorkspaceConfig holds workspace allocation settings.
type WorkspaceConfig struct {
	// Root is where per-session directories are created; empty uses the OS temp dir.
	Root string `yaml:"root"`
}

// SessionConfig holds per-session timing.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	DrainGrace    time.Duration `yaml:"drainGrace"`
	TeardownGrace time.Duration `yaml:"teardownGrace"`
}

// AppConfig holds the runner server configuration.
type AppConfig struct {
	Server    ServerConfig          `yaml:"server"`
	Logger    logger.Config         `yaml:"logger"`
	WebSocket transport.Config      `yaml:"websocket"`
	CORS      middleware.CORSConfig `yaml:"cors"`
	Workspace WorkspaceConfig       `yaml:"workspace"`
	Engine    engine.Config         `yaml:"engine"`
	Session   SessionConfig         `yaml:"session"`
	Limits    session.Limits        `yaml:"limits"`
	Languages []language.Spec       `yaml:"languages"`
	Rate      admission.Config      `yaml:"rateLimit"`
	// Redis is optional; without an address the rate limit is kept in process.
	Redis cache.RedisConfig `yaml:"redis"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = defaultMaxHeaderBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.WebSocket = cfg.WebSocket.WithDefaults()
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = defaultSessionIdle
	}

	cfg.Limits.Compile = spec.Merge(spec.ResourceLimit{WallTimeMs: defaultCompileWallMs}, cfg.Limits.Compile)
	cfg.Limits.Run = spec.Merge(spec.ResourceLimit{WallTimeMs: defaultRunWallMs}, cfg.Limits.Run)
	if cfg.Limits.MaxOutputBytes == 0 {
		cfg.Limits.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.Limits.MaxSourceBytes == 0 {
		cfg.Limits.MaxSourceBytes = defaultMaxSourceBytes
	}

	if len(cfg.Languages) == 0 {
		cfg.Languages = language.Defaults()
	}

	if cfg.Rate.Enabled && cfg.Rate.MaxPerWindow <= 0 && cfg.Rate.MaxConcurrent <= 0 {
		return fmt.Errorf("rateLimit enabled without maxPerWindow or maxConcurrent")
	}
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}
