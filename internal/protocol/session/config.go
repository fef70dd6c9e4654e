package session

import (
	"time"

	"github.com/danmuck/sv2wire/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-connection transport settings.
type Config struct {
	// Encrypted runs the noise handshake and seals every standard frame.
	Encrypted        bool
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout and WriteTimeout bound one frame; zero disables the deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
	Backoff      BackoffConfig
	// MaxConnectAttempts bounds Dial; zero retries until ctx is done.
	MaxConnectAttempts int
	Observer           Observer
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     15 * time.Second,
		Limits:           frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig. Read and write timeouts
// are left alone so zero keeps meaning "no deadline".
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.Limits.MaxPayload <= 0 {
		c.Limits = d.Limits
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}
