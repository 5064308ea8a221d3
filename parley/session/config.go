package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/TheusHen/parley/parley/crypto/ratchet"
)

// Config tunes a Manager. Zero fields take their default.
type Config struct {
	// ReadWindow is how many upcoming seekers per peer are polled ahead of the
	// last received message.
	ReadWindow int
	// MaxSkipped bounds how far behind the newest received message a missing one
	// is still waited for.
	MaxSkipped int
	// MaxGeneration is the ratchet budget of one session direction.
	MaxGeneration uint64
	// KeepAliveInterval is the idle time after which Refresh asks for a keep-alive.
	KeepAliveInterval time.Duration
	// MaxInactivity kills Active sessions that have received nothing for this
	// long. Zero disables it.
	MaxInactivity time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ReadWindow:        ratchet.DefaultWindow,
		MaxSkipped:        ratchet.DefaultMaxSkip,
		MaxGeneration:     ratchet.DefaultMaxGeneration,
		KeepAliveInterval: time.Hour,
		Now:               time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadWindow <= 0 {
		c.ReadWindow = d.ReadWindow
	}
	if c.MaxSkipped <= 0 {
		c.MaxSkipped = d.MaxSkipped
	}
	if c.MaxGeneration == 0 {
		c.MaxGeneration = d.MaxGeneration
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = d.KeepAliveInterval
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "session").Logger() }
}
