package kineticserver

import (
	"crypto/tls"
	"time"
)

// Config holds the Kinetic server configuration.
type Config struct {
	// Address is the plaintext listen address.
	Address string
	// TLSAddress is the TLS listen address. Empty disables TLS.
	TLSAddress string
	// TLSConfig is required when TLSAddress is set.
	TLSConfig *tls.Config
	// ReadTimeout bounds reading one frame once its first byte arrived.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration
	// IdleTimeout closes connections idle for this long.
	IdleTimeout time.Duration
	// RateLimit is the request rate allowed per connection, per second.
	// Zero disables rate limiting.
	RateLimit float64
	// RateBurst is the burst size for RateLimit.
	RateBurst int
	// MaxMessageSize limits the encoded message of a frame.
	MaxMessageSize int
	// MaxValueSize limits the value of a frame.
	MaxValueSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        "127.0.0.1:8123",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    5 * time.Minute,
		RateLimit:      0,
		RateBurst:      100,
		MaxMessageSize: DefaultMaxMessageSize,
		MaxValueSize:   DefaultMaxValueSize,
	}
}

func (c *Config) readTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return 30 * time.Second
	}
	return c.ReadTimeout
}

func (c *Config) writeTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return 30 * time.Second
	}
	return c.WriteTimeout
}

func (c *Config) idleTimeout() time.Duration {
	if c.IdleTimeout <= 0 {
		return 5 * time.Minute
	}
	return c.IdleTimeout
}

func (c *Config) maxMessageSize() int {
	if c.MaxMessageSize <= 0 {
		return DefaultMaxMessageSize
	}
	return c.MaxMessageSize
}

func (c *Config) maxValueSize() int {
	if c.MaxValueSize <= 0 {
		return DefaultMaxValueSize
	}
	return c.MaxValueSize
}
