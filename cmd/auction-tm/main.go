package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/auctionctl/internal/logging"
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const defaultConfigPath = "cmd/auction-tm/targets.toml"

var (
	// ErrNavigateBack signals caller-intent to return to the previous menu.
	ErrNavigateBack = errors.New("navigate back")
	// ErrNavigateExit signals caller-intent to exit the interactive client.
	ErrNavigateExit = errors.New("navigate exit")
)

// targetsFile persists the agent admin endpoints the client knows about.
type targetsFile struct {
	Active  string         `toml:"active"`
	Targets []targetConfig `toml:"targets"`
}

type targetConfig struct {
	Name string `toml:"name"`
	Addr string `toml:"addr"`
}

// Target is one agent admin endpoint with its client.
type Target struct {
	Name  string
	Admin *RemoteAgentAdmin
}

type App struct {
	reader  *bufio.Reader
	out     io.Writer
	cfgPath string
	targets []Target
	active  int
}

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "targets file")
	addr := flag.String("agent", "", "agent admin address to use without a targets file")
	flag.Parse()

	logging.ConfigureRuntime()
	app := NewApp(*cfgPath, os.Stdin, os.Stdout)
	if a := strings.TrimSpace(*addr); a != "" {
		app.addTarget("cli", a)
	}
	if err := app.Run(); err != nil {
		log.Error().Err(err).Msg("auction-tm failed")
		os.Exit(1)
	}
}

func NewApp(cfgPath string, in io.Reader, out io.Writer) *App {
	return &App{
		reader:  bufio.NewReader(in),
		out:     out,
		cfgPath: cfgPath,
		active:  -1,
	}
}

// Run executes the main interactive menu loop.
func (a *App) Run() error {
	if err := a.loadTargets(); err != nil {
		return err
	}
	log.Info().Int("targets", len(a.targets)).Str("config", a.cfgPath).Msg("auction-tm loaded")

	for {
		a.printMainMenu()
		choice, err := a.promptInt("Choose", 1, 10, false, true)
		if err != nil {
			if errors.Is(err, ErrNavigateExit) || errors.Is(err, io.EOF) {
				return a.exit()
			}
			return err
		}
		if err := a.dispatch(choice); err != nil {
			switch {
			case errors.Is(err, ErrNavigateExit):
				return a.exit()
			case errors.Is(err, ErrNavigateBack):
			case errors.Is(err, io.EOF):
				return a.exit()
			default:
				a.printf("error: %v\n", err)
			}
		}
		if choice == 10 {
			return a.exit()
		}
	}
}

func (a *App) dispatch(choice int) error {
	switch choice {
	case 1:
		a.listTargets()
		return nil
	case 2:
		return a.promptAddTarget()
	case 3:
		return a.selectTarget()
	}
	if choice == 10 {
		return nil
	}
	target, ok := a.activeTarget()
	if !ok {
		return fmt.Errorf("no active agent; add or select one first")
	}
	switch choice {
	case 4:
		return a.showStatus(target)
	case 5:
		return a.showListings(target)
	case 6:
		return a.placeBid(target)
	case 7:
		return a.showInventory(target)
	case 8:
		if err := target.Admin.RefreshBalance(); err != nil {
			return err
		}
		a.printf("Balance refresh requested.\n")
	case 9:
		if err := target.Admin.Leave(); err != nil {
			return err
		}
		a.printf("%s left the auction.\n", target.Name)
	}
	return nil
}

func (a *App) exit() error {
	if err := a.saveTargets(); err != nil {
		log.Warn().Err(err).Msg("auction-tm save on exit failed")
	}
	log.Info().Msg("auction-tm exiting")
	return nil
}

func (a *App) printMainMenu() {
	a.printf("\nAuction TM\n")
	a.printf("  targets: %s (%d)\n", a.cfgPath, len(a.targets))
	if t, ok := a.activeTarget(); ok {
		a.printf("  active:  %s @ %s\n", t.Name, t.Admin.Address())
	}
	a.printf("  1) List agents\n")
	a.printf("  2) Add agent\n")
	a.printf("  3) Select active agent\n")
	a.printf("  4) Status\n")
	a.printf("  5) Listings\n")
	a.printf("  6) Place bid\n")
	a.printf("  7) Inventory\n")
	a.printf("  8) Refresh balance\n")
	a.printf("  9) Leave auction\n")
	a.printf("  10) Exit\n")
}

func (a *App) loadTargets() error {
	var raw targetsFile
	if _, err := toml.DecodeFile(a.cfgPath, &raw); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load targets: %w", err)
	}
	for _, t := range raw.Targets {
		a.addTarget(t.Name, t.Addr)
	}
	for i, t := range a.targets {
		if t.Name == raw.Active {
			a.active = i
		}
	}
	return nil
}

func (a *App) saveTargets() error {
	out := targetsFile{Targets: make([]targetConfig, 0, len(a.targets))}
	for _, t := range a.targets {
		out.Targets = append(out.Targets, targetConfig{Name: t.Name, Addr: t.Admin.Address()})
	}
	if t, ok := a.activeTarget(); ok {
		out.Active = t.Name
	}
	if err := os.MkdirAll(filepath.Dir(a.cfgPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(a.cfgPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(out)
}

// addTarget replaces a target of the same name and makes it active.
func (a *App) addTarget(name, addr string) {
	name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
	if name == "" || addr == "" {
		return
	}
	for i := range a.targets {
		if a.targets[i].Name == name {
			a.targets[i].Admin = NewRemoteAgentAdmin(addr)
			a.active = i
			return
		}
	}
	a.targets = append(a.targets, Target{Name: name, Admin: NewRemoteAgentAdmin(addr)})
	a.active = len(a.targets) - 1
}

func (a *App) activeTarget() (Target, bool) {
	if a.active < 0 || a.active >= len(a.targets) {
		return Target{}, false
	}
	return a.targets[a.active], true
}

func (a *App) listTargets() {
	if len(a.targets) == 0 {
		a.printf("No agents configured.\n")
		return
	}
	for i, t := range a.targets {
		marker := " "
		if i == a.active {
			marker = "*"
		}
		a.printf(" %s %d) %s @ %s\n", marker, i+1, t.Name, t.Admin.Address())
	}
}

func (a *App) promptAddTarget() error {
	name, err := a.promptLine("Name")
	if err != nil {
		return err
	}
	addr, err := a.promptLine("Admin address (host:port)")
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(addr) == "" {
		return fmt.Errorf("name and address are required")
	}
	a.addTarget(name, addr)
	return a.saveTargets()
}

func (a *App) selectTarget() error {
	if len(a.targets) == 0 {
		return fmt.Errorf("no agents configured")
	}
	a.listTargets()
	n, err := a.promptInt("Agent", 1, len(a.targets), true, true)
	if err != nil {
		return err
	}
	a.active = n - 1
	return nil
}

func (a *App) showStatus(t Target) error {
	st, err := t.Admin.Status()
	if err != nil {
		return err
	}
	a.printf("%s (account %d)\n", st.Name, st.Account)
	a.printf("  available: %s\n", st.Balance.StringFixed(2))
	a.printf("  leading:   %d\n", st.Leading)
	a.printf("  houses:    %s\n", strings.Join(st.Houses, ", "))
	return nil
}

func (a *App) showListings(t Target) error {
	listings, err := t.Admin.Listings()
	if err != nil {
		return err
	}
	a.printf("%s", formatListings(listings))
	return nil
}

func (a *App) showInventory(t Target) error {
	inv, err := t.Admin.Inventory()
	if err != nil {
		return err
	}
	if len(inv) == 0 {
		a.printf("Nothing won yet.\n")
		return nil
	}
	for _, w := range inv {
		state := "awaiting transfer"
		if w.Paid {
			state = "paid"
		}
		a.printf("  %s #%d %s for %s (%s)\n", w.House, w.Item.Number, w.Item.Description, w.Item.CurrentBid.StringFixed(2), state)
	}
	return nil
}

func (a *App) placeBid(t Target) error {
	listings, err := t.Admin.Listings()
	if err != nil {
		return err
	}
	houses := sortedHouses(listings)
	if len(houses) == 0 {
		return fmt.Errorf("agent knows no auction houses")
	}
	for i, h := range houses {
		a.printf("  %d) %s (%d items)\n", i+1, h, len(listings[h]))
	}
	hi, err := a.promptInt("House", 1, len(houses), true, true)
	if err != nil {
		return err
	}
	house := houses[hi-1]
	a.printf("%s", formatListings(map[string][]protocol.Item{house: listings[house]}))

	raw, err := a.promptLine("Item number")
	if err != nil {
		return err
	}
	item, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("item number: %w", err)
	}
	listed, ok := protocol.Listing{Items: listings[house]}.Find(item)
	if !ok {
		return fmt.Errorf("item #%d is not listed at %s", item, house)
	}
	raw, err = a.promptLine(fmt.Sprintf("Amount (min %s)", listed.MinBid.StringFixed(2)))
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if err := t.Admin.Bid(house, item, amount); err != nil {
		return err
	}
	a.printf("Bid of %s on #%d sent to %s.\n", amount.StringFixed(2), item, house)
	return nil
}

func sortedHouses(listings map[string][]protocol.Item) []string {
	out := make([]string, 0, len(listings))
	for h := range listings {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func formatListings(listings map[string][]protocol.Item) string {
	var b strings.Builder
	for _, house := range sortedHouses(listings) {
		fmt.Fprintf(&b, "%s\n", house)
		items := listings[house]
		if len(items) == 0 {
			b.WriteString("  (nothing listed)\n")
			continue
		}
		for _, it := range items {
			leader := "no bids"
			if it.HasBid() {
				leader = fmt.Sprintf("%s by %s", it.CurrentBid.StringFixed(2), it.Bidder)
			}
			fmt.Fprintf(&b, "  #%-3d %-24s min %8s  %s\n", it.Number, it.Description, it.MinBid.StringFixed(2), leader)
		}
	}
	return b.String()
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) promptLine(label string) (string, error) {
	if strings.TrimSpace(label) != "" {
		a.printf("%s: ", label)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) promptInt(label string, min int, max int, allowBack bool, allowExit bool) (int, error) {
	for {
		rangePrompt := fmt.Sprintf("%s [%d-%d", label, min, max)
		if allowBack {
			rangePrompt += "|back|b"
		}
		if allowExit {
			rangePrompt += "|exit|e"
		}
		rangePrompt += "]"
		line, err := a.promptLine(rangePrompt)
		if err != nil {
			return 0, err
		}
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if allowBack && (trimmed == "back" || trimmed == "b") {
			return 0, ErrNavigateBack
		}
		if allowExit && (trimmed == "exit" || trimmed == "e") {
			return 0, ErrNavigateExit
		}
		v, err := strconv.Atoi(trimmed)
		if err != nil || v < min || v > max {
			a.printf("Invalid selection.\n")
			continue
		}
		return v, nil
	}
}
