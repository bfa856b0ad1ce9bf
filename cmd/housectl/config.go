package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/auctionctl/internal/cli"
	"github.com/danmuck/auctionctl/internal/house"
)

type fileConfig struct {
	ListenAddr      string          `toml:"listen_addr"`
	AdvertiseHost   string          `toml:"advertise_host"`
	BankAddr        string          `toml:"bank_addr"`
	AdminListenAddr string          `toml:"admin_listen_addr"`
	CORSOrigins     []string        `toml:"cors_origins"`
	BidWindow       string          `toml:"bid_window"`
	ActiveSlots     int             `toml:"active_slots"`
	TotalItems      int             `toml:"total_items"`
	CatalogFile     string          `toml:"catalog_file"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Session         cli.SessionFile `toml:"session"`
}

func loadServiceConfig(path string) (house.ServiceConfig, error) {
	cfg := house.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return house.ServiceConfig{}, fmt.Errorf("load house config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		if s := strings.TrimSpace(raw.ListenAddr); s != "" {
			cfg.ListenAddr = s
		}
	}

	if meta.IsDefined("advertise_host") {
		if s := strings.TrimSpace(raw.AdvertiseHost); s != "" {
			cfg.AdvertiseHost = s
		}
	}

	if meta.IsDefined("bank_addr") {
		if s := strings.TrimSpace(raw.BankAddr); s != "" {
			cfg.BankAddr = s
		}
	}

	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	if meta.IsDefined("bid_window") {
		d, err := cli.ParseDuration(raw.BidWindow)
		if err != nil {
			return house.ServiceConfig{}, fmt.Errorf("parse bid_window: %w", err)
		}
		if d <= 0 {
			return house.ServiceConfig{}, fmt.Errorf("bid_window must be positive")
		}
		cfg.BidWindow = d
	}

	if meta.IsDefined("active_slots") {
		if raw.ActiveSlots <= 0 {
			return house.ServiceConfig{}, fmt.Errorf("active_slots must be positive")
		}
		cfg.ActiveSlots = raw.ActiveSlots
	}

	if meta.IsDefined("total_items") {
		cfg.TotalItems = raw.TotalItems
	}

	if meta.IsDefined("catalog_file") {
		cfg.CatalogFile = strings.TrimSpace(raw.CatalogFile)
	}

	if meta.IsDefined("shutdown_timeout") {
		d, err := cli.ParseDuration(raw.ShutdownTimeout)
		if err != nil {
			return house.ServiceConfig{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	if err := raw.Session.Apply(meta, &cfg.Session); err != nil {
		return house.ServiceConfig{}, err
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
