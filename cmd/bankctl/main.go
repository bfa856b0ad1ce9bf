package main

import (
	"fmt"
	"os"

	"github.com/danmuck/auctionctl/internal/bank"
	"github.com/danmuck/auctionctl/internal/cli"
	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "bankctl",
	Short: "Run the auction bank",
	Long: `bankctl runs the bank that holds every agent and auction-house account.

Agents and houses connect over TCP. Settings come from an optional TOML file
(--config), then flags, then BANKCTL_* environment variables.`,
	SilenceUsage: true,
	RunE: func(c *cobra.Command, args []string) error {
		cli.ExpandEnvVars(v)
		cfg, err := resolveConfig(v)
		if err != nil {
			return err
		}
		observability.InitLogger("bankctl")
		return bank.NewServiceWithConfig(cfg).Run()
	},
}

func init() {
	flags := []cli.Flag{
		{Name: "config", DefValue: "", Description: "path to a bank TOML config"},
		{Name: "listen", DefValue: "", Description: "TCP listen address for agents and houses"},
		{Name: "admin-listen", DefValue: "", Description: "HTTP admin listen address; empty disables it"},
		{Name: "cors-origin", DefValue: "", Description: "allowed admin CORS origin", Repeatable: true},
	}
	if err := cli.ConfigureCLI(v, "BANKCTL", flags, rootCmd.Flags()); err != nil {
		panic(err)
	}
}

// resolveConfig layers file settings over defaults and flags over both.
func resolveConfig(v *viper.Viper) (bank.ServiceConfig, error) {
	cfg := bank.DefaultServiceConfig()
	if path, ok := cli.String(v, "config"); ok {
		loaded, err := loadServiceConfig(path)
		if err != nil {
			return bank.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if addr, ok := cli.String(v, "listen"); ok {
		cfg.ListenAddr = addr
	}
	if addr, ok := cli.String(v, "admin-listen"); ok {
		cfg.AdminListenAddr = addr
	}
	if origins := cli.Strings(v, "cors-origin"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bankctl: %v\n", err)
		os.Exit(1)
	}
}
