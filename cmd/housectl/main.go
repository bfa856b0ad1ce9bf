package main

import (
	"fmt"
	"os"
	"time"

	"github.com/danmuck/auctionctl/internal/cli"
	"github.com/danmuck/auctionctl/internal/house"
	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "housectl",
	Short: "Run an auction house",
	Long: `housectl runs one auction house. It registers with the bank, lists items
from a catalog file (or a generated one) and sells each item to the highest
bidder once its bid window passes without a higher bid.

Settings come from an optional TOML file (--config), then flags, then
HOUSECTL_* environment variables. SIGINT starts a graceful close: the house
stops once no item carries an active bid.`,
	SilenceUsage: true,
	RunE: func(c *cobra.Command, args []string) error {
		cli.ExpandEnvVars(v)
		cfg, err := resolveConfig(v)
		if err != nil {
			return err
		}
		observability.InitLogger("housectl")
		svc, err := house.NewServiceWithConfig(cfg)
		if err != nil {
			return err
		}
		return svc.Run()
	},
}

func init() {
	flags := []cli.Flag{
		{Name: "config", DefValue: "", Description: "path to a house TOML config"},
		{Name: "listen", DefValue: "", Description: "TCP listen address for agents"},
		{Name: "advertise-host", DefValue: "", Description: "host agents should dial"},
		{Name: "bank", DefValue: "", Description: "bank host:port"},
		{Name: "admin-listen", DefValue: "", Description: "HTTP admin listen address; empty disables it"},
		{Name: "cors-origin", DefValue: "", Description: "allowed admin CORS origin", Repeatable: true},
		{Name: "catalog", DefValue: "", Description: "item catalog TOML; empty generates items"},
		{Name: "bid-window", DefValue: time.Duration(0), Description: "time a bid must stand to win"},
		{Name: "active-slots", DefValue: 0, Description: "items listed at once"},
		{Name: "total-items", DefValue: 0, Description: "items to generate without a catalog"},
	}
	if err := cli.ConfigureCLI(v, "HOUSECTL", flags, rootCmd.Flags()); err != nil {
		panic(err)
	}
}

func resolveConfig(v *viper.Viper) (house.ServiceConfig, error) {
	cfg := house.DefaultServiceConfig()
	if path, ok := cli.String(v, "config"); ok {
		loaded, err := loadServiceConfig(path)
		if err != nil {
			return house.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if s, ok := cli.String(v, "listen"); ok {
		cfg.ListenAddr = s
	}
	if s, ok := cli.String(v, "advertise-host"); ok {
		cfg.AdvertiseHost = s
	}
	if s, ok := cli.String(v, "bank"); ok {
		cfg.BankAddr = s
	}
	if s, ok := cli.String(v, "admin-listen"); ok {
		cfg.AdminListenAddr = s
	}
	if origins := cli.Strings(v, "cors-origin"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if s, ok := cli.String(v, "catalog"); ok {
		cfg.CatalogFile = s
	}
	if d := v.GetDuration("bid-window"); d > 0 {
		cfg.BidWindow = d
	}
	if n := v.GetInt("active-slots"); n > 0 {
		cfg.ActiveSlots = n
	}
	if n := v.GetInt("total-items"); n > 0 {
		cfg.TotalItems = n
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "housectl: %v\n", err)
		os.Exit(1)
	}
}
