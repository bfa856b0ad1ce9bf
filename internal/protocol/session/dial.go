package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("session: address required")
	ErrDialFailed      = errors.New("session: dial failed")
)

// Dial connects to addr, retrying with backoff until cfg.MaxConnectAttempts
// is reached or ctx is done. The returned handler is not yet running; the
// caller starts Run with its dispatcher.
func Dial(ctx context.Context, addr, role string, cfg Config) (*Handler, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return NewHandler(conn, role, cfg), nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("addr", addr).Msg("session.Dial failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("%w: addr=%s attempts=%d: %v", ErrDialFailed, addr, attempt, err)
		}
		if err := sleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}
