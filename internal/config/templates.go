package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter TOML file for a process or for an item catalog.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bank":
		return bankTemplate, nil
	case "house":
		return houseTemplate, nil
	case "agent":
		return agentTemplate, nil
	case "catalog":
		return catalogTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const bankTemplate = `listen_addr = ":4444"
admin_listen_addr = "127.0.0.1:8444"
cors_origins = ["http://localhost:3000"]
`

const houseTemplate = `listen_addr = ":5555"
advertise_host = "127.0.0.1"
bank_addr = "127.0.0.1:4444"
admin_listen_addr = "127.0.0.1:8555"
bid_window = "30s"
active_slots = 3
total_items = 50
catalog_file = ""
shutdown_timeout = "2m"
`

const agentTemplate = `name = ""
bank_addr = "127.0.0.1:4444"
initial_balance = "1000"
admin_listen_addr = "127.0.0.1:8666"
auto_bid = false
auto_bid_interval = "5s"
`

const catalogTemplate = `active_slots = 3

[[items]]
description = "Brass telescope"
min_bid = 40

[[items]]
description = "Walnut writing desk"
min_bid = 85

[[items]]
description = "Signed first edition"
min_bid = 120

[[items]]
description = "Pocket watch"
min_bid = 25
`
