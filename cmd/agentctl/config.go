package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/auctionctl/internal/agent"
	"github.com/danmuck/auctionctl/internal/cli"
)

type fileConfig struct {
	Name            string          `toml:"name"`
	BankAddr        string          `toml:"bank_addr"`
	InitialBalance  string          `toml:"initial_balance"`
	AdminListenAddr string          `toml:"admin_listen_addr"`
	CORSOrigins     []string        `toml:"cors_origins"`
	AutoBid         bool            `toml:"auto_bid"`
	AutoBidInterval string          `toml:"auto_bid_interval"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Session         cli.SessionFile `toml:"session"`
}

func loadServiceConfig(path string) (agent.ServiceConfig, error) {
	cfg := agent.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return agent.ServiceConfig{}, fmt.Errorf("load agent config: %w", err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}

	if meta.IsDefined("bank_addr") {
		if s := strings.TrimSpace(raw.BankAddr); s != "" {
			cfg.BankAddr = s
		}
	}

	if meta.IsDefined("initial_balance") {
		amount, err := parseBalance(strings.TrimSpace(raw.InitialBalance))
		if err != nil {
			return agent.ServiceConfig{}, err
		}
		cfg.InitialBalance = amount
	}

	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	if meta.IsDefined("auto_bid") {
		cfg.AutoBid = raw.AutoBid
	}

	if meta.IsDefined("auto_bid_interval") {
		d, err := cli.ParseDuration(raw.AutoBidInterval)
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("parse auto_bid_interval: %w", err)
		}
		cfg.AutoBidInterval = d
	}

	if meta.IsDefined("shutdown_timeout") {
		d, err := cli.ParseDuration(raw.ShutdownTimeout)
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	if err := raw.Session.Apply(meta, &cfg.Session); err != nil {
		return agent.ServiceConfig{}, err
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
