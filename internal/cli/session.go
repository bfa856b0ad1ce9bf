package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/auctionctl/internal/protocol/session"
)

// SessionFile is the [session] table shared by every process config file.
type SessionFile struct {
	ConnectTimeout     string `toml:"connect_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	ReadIdleTimeout    string `toml:"read_idle_timeout"`
	SendQueueDepth     int    `toml:"send_queue_depth"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	MaxPayloadBytes    uint64 `toml:"max_payload_bytes"`
}

// Apply overlays the keys present in the file onto cfg.
func (f SessionFile) Apply(meta toml.MetaData, cfg *session.Config) error {
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", f.ConnectTimeout, &cfg.ConnectTimeout},
		{"write_timeout", f.WriteTimeout, &cfg.WriteTimeout},
		{"read_idle_timeout", f.ReadIdleTimeout, &cfg.ReadIdleTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		parsed, err := ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse session.%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if meta.IsDefined("session", "send_queue_depth") {
		cfg.SendQueueDepth = f.SendQueueDepth
	}
	if meta.IsDefined("session", "max_connect_attempts") {
		cfg.MaxConnectAttempts = f.MaxConnectAttempts
	}
	if meta.IsDefined("session", "max_payload_bytes") {
		cfg.Limits.MaxPayloadBytes = f.MaxPayloadBytes
	}
	return nil
}

// ParseDuration accepts Go duration strings; blank means zero.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
