package main

import (
	"flag"
	"log"

	"github.com/danmuck/auctionctl/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "bank":
		return "cmd/bankctl/config.toml"
	case "house":
		return "cmd/housectl/config.toml"
	case "agent":
		return "cmd/agentctl/config.toml"
	case "catalog":
		return "cmd/housectl/catalog.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "house", "config kind: bank|house|agent|catalog")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if err := config.ValidateFile(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
