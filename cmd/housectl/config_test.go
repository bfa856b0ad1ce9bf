package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/config"
	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "house.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigTemplate(t *testing.T) {
	tmpl, err := config.Template("house")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	cfg, err := loadServiceConfig(writeConfig(t, tmpl))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != ":5555" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.BankAddr != "127.0.0.1:4444" {
		t.Fatalf("unexpected bank addr: %q", cfg.BankAddr)
	}
	if cfg.BidWindow != 30*time.Second {
		t.Fatalf("unexpected bid window: %v", cfg.BidWindow)
	}
	if cfg.ActiveSlots != 3 || cfg.TotalItems != 50 {
		t.Fatalf("unexpected slots/items: %d/%d", cfg.ActiveSlots, cfg.TotalItems)
	}
	if cfg.CatalogFile != "" {
		t.Fatalf("unexpected catalog file: %q", cfg.CatalogFile)
	}
	if cfg.ShutdownTimeout != 2*time.Minute {
		t.Fatalf("unexpected shutdown timeout: %v", cfg.ShutdownTimeout)
	}
}

func TestLoadServiceConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bid_window":   "bid_window = \"0s\"\n",
		"active_slots": "active_slots = 0\n",
		"duration":     "shutdown_timeout = \"later\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadServiceConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error for %s", strings.TrimSpace(body))
			}
		})
	}
}

func TestResolveConfigFlagsWinOverFile(t *testing.T) {
	v := viper.New()
	v.Set("config", writeConfig(t, "bid_window = \"10s\"\nactive_slots = 2\n"))
	v.Set("bid-window", "500ms")
	v.Set("bank", "10.0.0.5:4444")

	cfg, err := resolveConfig(v)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.BidWindow != 500*time.Millisecond {
		t.Fatalf("flag should override file: %v", cfg.BidWindow)
	}
	if cfg.ActiveSlots != 2 {
		t.Fatalf("file value should survive: %d", cfg.ActiveSlots)
	}
	if cfg.BankAddr != "10.0.0.5:4444" {
		t.Fatalf("unexpected bank addr: %q", cfg.BankAddr)
	}
}
