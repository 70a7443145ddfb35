// Package transport carries session events over WebSocket connections.
package transport

import "time"

const (
	defaultReadLimit        = 1 << 20
	defaultPingInterval     = 30 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultSendBuffer       = 256
)

// Config holds WebSocket connection settings.
type Config struct {
	// ReadLimit caps a single inbound frame; larger frames close the connection.
	ReadLimit        int64         `yaml:"readLimit"`
	PingInterval     time.Duration `yaml:"pingInterval"`
	PongWait         time.Duration `yaml:"pongWait"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	SendBuffer       int           `yaml:"sendBuffer"`
	// AllowedOrigins lists browser origins allowed to connect. Empty means same origin only.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	return c
}
