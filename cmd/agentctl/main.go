package main

import (
	"fmt"
	"os"
	"time"

	"github.com/danmuck/auctionctl/internal/agent"
	"github.com/danmuck/auctionctl/internal/cli"
	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Run a bidding agent",
	Long: `agentctl opens a bank account, connects to every auction house the bank
lists and bids on their items. Bids are placed through the admin API
(POST /bids) or by the auto-bidder (--auto-bid).

Settings come from an optional TOML file (--config), then flags, then
AGENTCTL_* environment variables. SIGINT leaves once no bid is leading.`,
	SilenceUsage: true,
	RunE: func(c *cobra.Command, args []string) error {
		cli.ExpandEnvVars(v)
		cfg, err := resolveConfig(v)
		if err != nil {
			return err
		}
		observability.InitLogger("agentctl")
		return agent.NewServiceWithConfig(cfg).Run()
	},
}

func init() {
	flags := []cli.Flag{
		{Name: "config", DefValue: "", Description: "path to an agent TOML config"},
		{Name: "name", DefValue: "", Description: "account holder name; empty picks one"},
		{Name: "bank", DefValue: "", Description: "bank host:port"},
		{Name: "balance", DefValue: "", Description: "opening balance"},
		{Name: "admin-listen", DefValue: "", Description: "HTTP admin listen address; empty disables it"},
		{Name: "cors-origin", DefValue: "", Description: "allowed admin CORS origin", Repeatable: true},
		{Name: "auto-bid", DefValue: false, Description: "bid automatically on random items"},
		{Name: "auto-bid-interval", DefValue: time.Duration(0), Description: "pause between automatic bids"},
	}
	if err := cli.ConfigureCLI(v, "AGENTCTL", flags, rootCmd.Flags()); err != nil {
		panic(err)
	}
}

func resolveConfig(v *viper.Viper) (agent.ServiceConfig, error) {
	cfg := agent.DefaultServiceConfig()
	if path, ok := cli.String(v, "config"); ok {
		loaded, err := loadServiceConfig(path)
		if err != nil {
			return agent.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if s, ok := cli.String(v, "name"); ok {
		cfg.Name = s
	}
	if s, ok := cli.String(v, "bank"); ok {
		cfg.BankAddr = s
	}
	if s, ok := cli.String(v, "balance"); ok {
		amount, err := parseBalance(s)
		if err != nil {
			return agent.ServiceConfig{}, err
		}
		cfg.InitialBalance = amount
	}
	if s, ok := cli.String(v, "admin-listen"); ok {
		cfg.AdminListenAddr = s
	}
	if origins := cli.Strings(v, "cors-origin"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if v.GetBool("auto-bid") {
		cfg.AutoBid = true
	}
	if d := v.GetDuration("auto-bid-interval"); d > 0 {
		cfg.AutoBidInterval = d
	}
	return cfg, nil
}

func parseBalance(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("balance must not be negative: %s", raw)
	}
	return amount, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
}
