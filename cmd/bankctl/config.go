package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/auctionctl/internal/bank"
	"github.com/danmuck/auctionctl/internal/cli"
)

type fileConfig struct {
	ListenAddr      string          `toml:"listen_addr"`
	AdminListenAddr string          `toml:"admin_listen_addr"`
	CORSOrigins     []string        `toml:"cors_origins"`
	Session         cli.SessionFile `toml:"session"`
}

func loadServiceConfig(path string) (bank.ServiceConfig, error) {
	cfg := bank.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return bank.ServiceConfig{}, fmt.Errorf("load bank config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		if addr := strings.TrimSpace(raw.ListenAddr); addr != "" {
			cfg.ListenAddr = addr
		}
	}

	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	if err := raw.Session.Apply(meta, &cfg.Session); err != nil {
		return bank.ServiceConfig{}, err
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if v := strings.TrimSpace(s); v != "" {
			out = append(out, v)
		}
	}
	return out
}
