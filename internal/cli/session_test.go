package cli

import (
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/danmuck/auctionctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type withSession struct {
	Session SessionFile `toml:"session"`
}

func TestSessionFileOverlaysDefinedKeys(t *testing.T) {
	testlog.Start(t)
	var raw withSession
	meta, err := toml.Decode(`
[session]
connect_timeout = "2s"
max_connect_attempts = 0
`, &raw)
	require.NoError(t, err)

	cfg := session.DefaultConfig()
	require.NoError(t, raw.Session.Apply(meta, &cfg))
	require.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	require.Zero(t, cfg.MaxConnectAttempts)
	require.Equal(t, session.DefaultConfig().WriteTimeout, cfg.WriteTimeout)
	require.Equal(t, session.DefaultConfig().SendQueueDepth, cfg.SendQueueDepth)
}

func TestSessionFileRejectsBadDuration(t *testing.T) {
	testlog.Start(t)
	var raw withSession
	meta, err := toml.Decode("[session]\nwrite_timeout = \"soon\"\n", &raw)
	require.NoError(t, err)
	cfg := session.DefaultConfig()
	require.Error(t, raw.Session.Apply(meta, &cfg))
}
