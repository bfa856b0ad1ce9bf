package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/bank"
	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bank.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
listen_addr = "127.0.0.1:4545"
cors_origins = [" http://localhost:3000 ", ""]

[session]
write_timeout = "3s"
`)
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:4545" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.AdminListenAddr != "" {
		t.Fatalf("unexpected admin listen: %q", cfg.AdminListenAddr)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CORSOrigins)
	}
	if cfg.Session.WriteTimeout != 3*time.Second {
		t.Fatalf("unexpected write timeout: %v", cfg.Session.WriteTimeout)
	}
	if cfg.Session.ConnectTimeout != bank.DefaultServiceConfig().Session.ConnectTimeout {
		t.Fatalf("connect timeout should keep its default: %v", cfg.Session.ConnectTimeout)
	}
}

func TestLoadServiceConfigMissingFile(t *testing.T) {
	if _, err := loadServiceConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestResolveConfigFlagsWinOverFile(t *testing.T) {
	path := writeConfig(t, "listen_addr = \"127.0.0.1:4545\"\n")
	v := viper.New()
	v.Set("config", path)
	v.Set("listen", ":9999")
	v.Set("admin-listen", "127.0.0.1:8444")

	cfg, err := resolveConfig(v)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("flag should override file: %q", cfg.ListenAddr)
	}
	if cfg.AdminListenAddr != "127.0.0.1:8444" {
		t.Fatalf("unexpected admin listen: %q", cfg.AdminListenAddr)
	}
}
