package config

import (
	"fmt"
	"sort"
	"strings"
)

var sessionKeys = []string{
	"connect_timeout",
	"write_timeout",
	"read_idle_timeout",
	"send_queue_depth",
	"max_connect_attempts",
	"max_payload_bytes",
}

var processKeys = map[string][]string{
	"bank": {"listen_addr", "admin_listen_addr", "cors_origins", "session"},
	"house": {
		"listen_addr", "advertise_host", "bank_addr", "admin_listen_addr", "cors_origins",
		"bid_window", "active_slots", "total_items", "catalog_file", "shutdown_timeout", "session",
	},
	"agent": {
		"name", "bank_addr", "initial_balance", "admin_listen_addr", "cors_origins",
		"auto_bid", "auto_bid_interval", "shutdown_timeout", "session",
	},
}

// ValidateFile checks that path parses as a config of the given kind and
// carries no keys that kind does not understand. Catalogs are fully loaded.
func ValidateFile(kind, path string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "catalog" {
		_, err := LoadCatalog(path)
		return err
	}
	allowed, ok := processKeys[kind]
	if !ok {
		return fmt.Errorf("unknown config kind: %s", kind)
	}

	var raw map[string]any
	if err := loadToml(path, &raw); err != nil {
		return err
	}
	if unknown := unknownKeys(raw, allowed); len(unknown) > 0 {
		return fmt.Errorf("%s config %s: unknown keys: %s", kind, path, strings.Join(unknown, ", "))
	}
	if sess, ok := raw["session"]; ok {
		table, ok := sess.(map[string]any)
		if !ok {
			return fmt.Errorf("%s config %s: session must be a table", kind, path)
		}
		if unknown := unknownKeys(table, sessionKeys); len(unknown) > 0 {
			return fmt.Errorf("%s config %s: unknown session keys: %s", kind, path, strings.Join(unknown, ", "))
		}
	}
	return nil
}

func unknownKeys(raw map[string]any, allowed []string) []string {
	known := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		known[k] = struct{}{}
	}
	var out []string
	for k := range raw {
		if _, ok := known[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
