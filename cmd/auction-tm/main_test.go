package main

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/agent"
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/shopspring/decimal"
)

func agentAdmin(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := agent.DefaultServiceConfig()
	cfg.Name = "tm-agent"
	svc := agent.NewServiceWithConfig(cfg)
	srv := httptest.NewServer(svc.Node().HTTPRouter())
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteAgentAdminAgainstAgentRoutes(t *testing.T) {
	srv := agentAdmin(t)
	c := NewRemoteAgentAdmin(srv.URL)

	st, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Name != "tm-agent" || st.Account != 0 {
		t.Fatalf("unexpected status: %+v", st)
	}

	listings, err := c.Listings()
	if err != nil {
		t.Fatalf("listings: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("unexpected listings: %+v", listings)
	}

	err = c.Bid("127.0.0.1:5555", 1, decimal.NewFromInt(10))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown house, got %v", err)
	}

	if err := c.Leave(); !errors.Is(err, ErrAgentRefused) {
		t.Fatalf("expected refusal before start, got %v", err)
	}
}

func TestAppAddsTargetAndPersistsIt(t *testing.T) {
	srv := agentAdmin(t)
	path := filepath.Join(t.TempDir(), "targets.toml")
	addr := strings.TrimPrefix(srv.URL, "http://")

	var out bytes.Buffer
	script := strings.Join([]string{"2", "local", addr, "4", "7", "10"}, "\n") + "\n"
	app := NewApp(path, strings.NewReader(script), &out)
	if err := app.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "tm-agent (account 0)") {
		t.Fatalf("status not shown:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Nothing won yet.") {
		t.Fatalf("inventory not shown:\n%s", out.String())
	}

	reloaded := NewApp(path, strings.NewReader("e\n"), &bytes.Buffer{})
	if err := reloaded.loadTargets(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	active, ok := reloaded.activeTarget()
	if !ok || active.Name != "local" || active.Admin.Address() != addr {
		t.Fatalf("unexpected active target: %+v ok=%v", active, ok)
	}
}

func TestAppRequiresActiveTarget(t *testing.T) {
	var out bytes.Buffer
	app := NewApp(filepath.Join(t.TempDir(), "targets.toml"), strings.NewReader("4\ne\n"), &out)
	if err := app.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "no active agent") {
		t.Fatalf("expected missing target error:\n%s", out.String())
	}
}

func TestFormatListings(t *testing.T) {
	at := time.Now()
	got := formatListings(map[string][]protocol.Item{
		"127.0.0.1:5556": nil,
		"127.0.0.1:5555": {
			{Number: 1, Description: "Pocket watch", MinBid: decimal.NewFromInt(25)},
			{Number: 2, Description: "Telescope", MinBid: decimal.NewFromInt(42), CurrentBid: decimal.NewFromInt(40), Bidder: "alice", BidTime: &at},
		},
	})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if lines[0] != "127.0.0.1:5555" {
		t.Fatalf("houses should be sorted: %q", lines[0])
	}
	if !strings.Contains(lines[1], "no bids") || !strings.Contains(lines[1], "25.00") {
		t.Fatalf("unexpected unbid line: %q", lines[1])
	}
	if !strings.Contains(lines[2], "40.00 by alice") {
		t.Fatalf("unexpected bid line: %q", lines[2])
	}
	if lines[3] != "127.0.0.1:5556" || !strings.Contains(lines[4], "nothing listed") {
		t.Fatalf("unexpected empty house: %q", got)
	}
}
