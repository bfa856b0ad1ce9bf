package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/config"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigTemplate(t *testing.T) {
	tmpl, err := config.Template("agent")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	cfg, err := loadServiceConfig(writeConfig(t, tmpl))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if !cfg.InitialBalance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected balance: %s", cfg.InitialBalance)
	}
	if cfg.AutoBid {
		t.Fatalf("auto bid should be off")
	}
	if cfg.AutoBidInterval != 5*time.Second {
		t.Fatalf("unexpected auto bid interval: %v", cfg.AutoBidInterval)
	}
	if cfg.AdminListenAddr != "127.0.0.1:8666" {
		t.Fatalf("unexpected admin listen: %q", cfg.AdminListenAddr)
	}
}

func TestLoadServiceConfigRejectsNegativeBalance(t *testing.T) {
	if _, err := loadServiceConfig(writeConfig(t, "initial_balance = \"-5\"\n")); err == nil {
		t.Fatalf("expected error for negative balance")
	}
	if _, err := loadServiceConfig(writeConfig(t, "initial_balance = \"lots\"\n")); err == nil {
		t.Fatalf("expected error for non-numeric balance")
	}
}

func TestResolveConfigFlagsWinOverFile(t *testing.T) {
	v := viper.New()
	v.Set("config", writeConfig(t, "name = \"alice\"\ninitial_balance = \"250.50\"\n"))
	v.Set("balance", "75")
	v.Set("auto-bid", true)

	cfg, err := resolveConfig(v)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Name != "alice" {
		t.Fatalf("file name should survive: %q", cfg.Name)
	}
	if !cfg.InitialBalance.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("flag should override file: %s", cfg.InitialBalance)
	}
	if !cfg.AutoBid {
		t.Fatalf("expected auto bid on")
	}
}
