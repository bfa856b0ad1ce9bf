package session

import (
	"time"

	"github.com/danmuck/auctionctl/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport defaults shared by bank, house and agent connections.
type Config struct {
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	ReadIdleTimeout    time.Duration // zero: reads block until the peer goes away
	SendQueueDepth     int
	MaxConnectAttempts int // zero: retry until ctx is done
	Limits             frame.Limits
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		WriteTimeout:       10 * time.Second,
		SendQueueDepth:     256,
		MaxConnectAttempts: 5,
		Limits:             frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.SendQueueDepth <= 0 {
		c.SendQueueDepth = def.SendQueueDepth
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = def.Limits
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
