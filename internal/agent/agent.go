package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

var (
	ErrUnknownHouse      = errors.New("agent: unknown auction house")
	ErrUnknownItem       = errors.New("agent: item not listed")
	ErrInsufficientFunds = errors.New("agent: insufficient funds")
	ErrNotRegistered     = errors.New("agent: no bank account yet")
	ErrLeadingBids       = errors.New("agent: still leading or settling bids")
	ErrNotStarted        = errors.New("agent: not started")
)

// Config configures one bidding agent.
type Config struct {
	Name            string
	InitialBalance  decimal.Decimal
	BankAddr        string
	RegisterTimeout time.Duration
	Session         session.Config
}

// Peer is the agent's view of one connection.
type Peer interface {
	ID() string
	Send(protocol.Message) error
}

// Won is an item the agent won, paid for or awaiting settlement.
type Won struct {
	House string        `json:"house"`
	Item  protocol.Item `json:"item"`
	Paid  bool          `json:"paid"`
}

// Status is a snapshot of the agent's cached state.
type Status struct {
	Name    string          `json:"name"`
	Account int             `json:"account"`
	Balance decimal.Decimal `json:"balance"`
	Houses  []string        `json:"houses"`
	Leading int             `json:"leading"`
}

type houseConn struct {
	info    protocol.HouseInfo
	peer    Peer
	close   func() error
	listing []protocol.Item
}

// Agent holds an account at the bank and bids at every auction house the
// bank lists.
type Agent struct {
	cfg      Config
	notifier Notifier

	mu        sync.Mutex
	account   int
	balance   decimal.Decimal
	bank      Peer
	bankConn  *session.Handler
	houses    map[string]*houseConn // by host:port
	dialing   map[string]struct{}   // houses with a connect in flight
	breakers  map[string]*gobreaker.CircuitBreaker
	inventory []Won

	registered     chan struct{}
	registeredOnce sync.Once

	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfg Config, notifier Notifier) *Agent {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "agent-" + uuid.NewString()[:8]
	}
	if cfg.RegisterTimeout <= 0 {
		cfg.RegisterTimeout = 10 * time.Second
	}
	cfg.Session = cfg.Session.WithDefaults()
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Agent{
		cfg:        cfg,
		notifier:   notifier,
		balance:    cfg.InitialBalance,
		houses:     make(map[string]*houseConn),
		dialing:    make(map[string]struct{}),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		registered: make(chan struct{}),
	}
}

func (a *Agent) Name() string {
	return a.cfg.Name
}

// Start connects to the bank, opens the account and waits for its number.
// The connections it makes live until Close or ctx is done.
func (a *Agent) Start(ctx context.Context) error {
	bank, err := session.Dial(ctx, a.cfg.BankAddr, "agent", a.cfg.Session)
	if err != nil {
		return fmt.Errorf("agent: connect bank: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.bank = bank
	a.bankConn = bank
	a.runCtx = runCtx
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		if err := bank.Run(runCtx, session.DispatchFunc(func(ctx context.Context, _ *session.Handler, msg protocol.Message) protocol.Message {
			return a.Handle(ctx, "", msg)
		})); err != nil {
			log.Warn().Err(err).Str("agent", a.cfg.Name).Msg("agent.Start bank session ended")
		}
	}()

	if err := bank.Send(protocol.AccountMessage(protocol.TypeNewAccount, protocol.AccountInfo{
		Name:    a.cfg.Name,
		Balance: a.cfg.InitialBalance,
	})); err != nil {
		cancel()
		return err
	}

	timer := time.NewTimer(a.cfg.RegisterTimeout)
	defer timer.Stop()
	select {
	case <-a.registered:
		return nil
	case <-bank.Done():
		cancel()
		return fmt.Errorf("agent: bank closed before registration")
	case <-timer.C:
		cancel()
		return fmt.Errorf("agent: no account after %s", a.cfg.RegisterTimeout)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Done is closed when the bank connection ends.
func (a *Agent) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bankConn == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.bankConn.Done()
}

// Handle processes one message. house is the sender's host:port, empty for
// the bank.
func (a *Agent) Handle(ctx context.Context, house string, msg protocol.Message) protocol.Message {
	if err := protocol.Validate(msg); err != nil {
		return protocol.Waiting()
	}
	p := msg.Payload
	switch msg.Type {
	case protocol.TypeNewAccount:
		a.mu.Lock()
		a.account = p.Account.Account
		a.balance = p.Account.Balance
		a.mu.Unlock()
		a.registeredOnce.Do(func() { close(a.registered) })
		a.notifier.Notify(Event{Kind: EventRegistered, Balance: p.Account.Balance})
	case protocol.TypeBalance:
		if p.Balance != nil {
			a.mu.Lock()
			a.balance = *p.Balance
			a.mu.Unlock()
			a.notifier.Notify(Event{Kind: EventBalance, Balance: *p.Balance})
		}
	case protocol.TypeAccountBalance:
		if p.Account != nil {
			a.notifier.Notify(Event{Kind: EventAccountTotal, Balance: p.Account.Balance})
		}
	case protocol.TypeListAuctionHouses:
		a.ReceiveHouses(ctx, p.Houses)
	case protocol.TypeListing:
		a.mu.Lock()
		hc, ok := a.houses[house]
		if ok {
			hc.listing = append([]protocol.Item(nil), p.Listing.Items...)
		}
		a.mu.Unlock()
		if ok {
			a.notifier.Notify(Event{Kind: EventListing, House: house, Items: p.Listing.Items})
		}
	case protocol.TypeBidAccepted:
		bid := *p.Bid
		a.notifier.Notify(Event{Kind: EventBidAccepted, House: house, Bid: &bid})
		a.RequestBalance()
	case protocol.TypeBidRejected:
		bid := *p.Bid
		a.notifier.Notify(Event{Kind: EventBidRejected, House: house, Bid: &bid})
	case protocol.TypeOutbid:
		bid := *p.Bid
		a.notifier.Notify(Event{Kind: EventOutbid, House: house, Bid: &bid})
		a.RequestBalance()
	case protocol.TypeWinner:
		a.won(house, *p.Item)
	case protocol.TypeFundsTransferred:
		a.settled(*p.Bid, true)
	case protocol.TypeFundsNotTransferred:
		if p.Bid != nil {
			a.settled(*p.Bid, false)
		}
	case protocol.TypeDisconnect:
		if p.House != nil {
			a.dropHouse(p.House.Addr())
		}
	}
	return protocol.Waiting()
}

func (a *Agent) won(house string, item protocol.Item) {
	a.mu.Lock()
	a.inventory = append(a.inventory, Won{House: house, Item: item})
	bank, account := a.bank, a.account
	a.mu.Unlock()

	a.notifier.Notify(Event{Kind: EventWon, House: house, Item: &item})
	if bank == nil {
		return
	}
	err := bank.Send(protocol.TransferMessage(protocol.TypeTransferFunds, protocol.Transfer{
		From:   account,
		To:     item.HouseAccount,
		Amount: item.CurrentBid,
		Item:   item,
	}))
	if err != nil {
		log.Warn().Err(err).Int("item", item.Number).Msg("agent.won transfer request failed")
	}
}

// settled records the bank's settlement outcome for a won item.
func (a *Agent) settled(bid protocol.Bid, ok bool) {
	a.mu.Lock()
	var house string
	for i := range a.inventory {
		w := &a.inventory[i]
		if w.Paid || w.Item.Number != bid.Item || !w.Item.CurrentBid.Equal(bid.Amount) {
			continue
		}
		house = w.House
		if ok {
			w.Paid = true
		} else {
			a.inventory = append(a.inventory[:i], a.inventory[i+1:]...)
		}
		break
	}
	a.mu.Unlock()

	kind := EventTransferred
	if !ok {
		kind = EventTransferFailed
	}
	a.notifier.Notify(Event{Kind: kind, House: house, Bid: &bid})
	a.RequestBalance()
}

// ReceiveHouses reconciles house connections with the bank's directory:
// new houses are dialed and registered with in the background, missing ones
// are dropped.
func (a *Agent) ReceiveHouses(ctx context.Context, list []protocol.HouseInfo) {
	want := make(map[string]protocol.HouseInfo, len(list))
	for _, h := range list {
		want[h.Addr()] = h
	}

	a.mu.Lock()
	var stale []*houseConn
	for addr, hc := range a.houses {
		if _, ok := want[addr]; !ok {
			stale = append(stale, hc)
			delete(a.houses, addr)
		}
	}
	for addr := range a.dialing {
		if _, ok := want[addr]; !ok {
			delete(a.dialing, addr)
		}
	}
	var fresh []protocol.HouseInfo
	for addr, info := range want {
		_, connected := a.houses[addr]
		_, inFlight := a.dialing[addr]
		if !connected && !inFlight {
			a.dialing[addr] = struct{}{}
			fresh = append(fresh, info)
		}
	}
	a.mu.Unlock()

	for _, hc := range stale {
		_ = hc.close()
		log.Info().Str("house", hc.info.Addr()).Msg("agent.ReceiveHouses house delisted")
	}
	for _, info := range fresh {
		go func(info protocol.HouseInfo) {
			if err := a.connectHouse(ctx, info); err != nil {
				log.Warn().Err(err).Str("house", info.Addr()).Msg("agent.ReceiveHouses connect failed")
			}
		}(info)
	}
	a.notifier.Notify(Event{Kind: EventHouses, Houses: list})
}

func (a *Agent) breaker(addr string) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	cb, ok := a.breakers[addr]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        addr,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Info().Str("house", name).Str("from", from.String()).Str("to", to.String()).Msg("agent.breaker state change")
			},
		})
		a.breakers[addr] = cb
	}
	return cb
}

func (a *Agent) connectHouse(ctx context.Context, info protocol.HouseInfo) error {
	a.mu.Lock()
	runCtx, account := a.runCtx, a.account
	a.mu.Unlock()
	if runCtx == nil {
		runCtx = ctx
	}
	addr := info.Addr()

	res, err := a.breaker(addr).Execute(func() (interface{}, error) {
		return session.Dial(runCtx, addr, "agent", a.cfg.Session)
	})
	if err != nil {
		a.mu.Lock()
		delete(a.dialing, addr)
		a.mu.Unlock()
		return err
	}
	h := res.(*session.Handler)

	a.mu.Lock()
	_, claimed := a.dialing[addr]
	delete(a.dialing, addr)
	if _, dup := a.houses[addr]; dup || !claimed {
		// Already connected, or delisted while dialing.
		a.mu.Unlock()
		return h.Close()
	}
	a.houses[addr] = &houseConn{info: info, peer: h, close: h.Close}
	a.mu.Unlock()

	go func() {
		err := h.Run(runCtx, session.DispatchFunc(func(ctx context.Context, _ *session.Handler, msg protocol.Message) protocol.Message {
			return a.Handle(ctx, addr, msg)
		}))
		if err != nil {
			log.Warn().Err(err).Str("house", addr).Msg("agent.connectHouse session ended")
		}
		a.forgetHouse(addr, h)
	}()

	return h.Send(protocol.AgentMessage(protocol.TypeRegister, protocol.AgentInfo{Name: a.cfg.Name, Account: account}))
}

// forgetHouse drops the house entry if it still belongs to conn.
func (a *Agent) forgetHouse(addr string, conn Peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if hc, ok := a.houses[addr]; ok && hc.peer.ID() == conn.ID() {
		delete(a.houses, addr)
	}
}

func (a *Agent) dropHouse(addr string) {
	a.mu.Lock()
	hc, ok := a.houses[addr]
	delete(a.houses, addr)
	a.mu.Unlock()
	if !ok {
		return
	}
	_ = hc.close()
	a.notifier.Notify(Event{Kind: EventHouseLeft, House: addr})
}

// BidOnItem sends a bid if the cached listing has the item and the cached
// balance covers the amount. The outcome arrives asynchronously.
func (a *Agent) BidOnItem(house string, item int, amount decimal.Decimal) error {
	a.mu.Lock()
	hc, ok := a.houses[house]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHouse, house)
	}
	if _, ok := (protocol.Listing{Items: hc.listing}).Find(item); !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: #%d at %s", ErrUnknownItem, item, house)
	}
	if amount.IsNegative() || amount.GreaterThan(a.balance) {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s > %s", ErrInsufficientFunds, amount, a.balance)
	}
	if a.account == 0 {
		a.mu.Unlock()
		return ErrNotRegistered
	}
	peer, account := hc.peer, a.account
	a.mu.Unlock()

	return peer.Send(protocol.BidMessage(protocol.TypeBid, protocol.Bid{
		Account: account,
		Item:    item,
		Amount:  amount,
	}))
}

// RequestBalance asks the bank for the available balance.
func (a *Agent) RequestBalance() {
	a.mu.Lock()
	bank, account := a.bank, a.account
	a.mu.Unlock()
	if bank == nil {
		return
	}
	_ = bank.Send(protocol.AgentMessage(protocol.TypeBalance, protocol.AgentInfo{Name: a.cfg.Name, Account: account}))
}

// Leading counts items the agent currently leads or has won but not yet
// paid for.
func (a *Agent) Leading() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leadingLocked()
}

func (a *Agent) leadingLocked() int {
	n := 0
	if a.account != 0 {
		for _, hc := range a.houses {
			for _, it := range hc.listing {
				if it.HasBid() && it.BidderAccount == a.account {
					n++
				}
			}
		}
	}
	for _, w := range a.inventory {
		if !w.Paid {
			n++
		}
	}
	return n
}

// TryDisconnect leaves every house and then the bank. It refuses while the
// agent leads any item.
func (a *Agent) TryDisconnect(ctx context.Context) error {
	a.mu.Lock()
	if a.bank == nil {
		a.mu.Unlock()
		return ErrNotStarted
	}
	if n := a.leadingLocked(); n > 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrLeadingBids, n)
	}
	me := protocol.AgentInfo{Name: a.cfg.Name, Account: a.account}
	houses := make([]*houseConn, 0, len(a.houses))
	for addr, hc := range a.houses {
		houses = append(houses, hc)
		delete(a.houses, addr)
	}
	clear(a.dialing)
	bank, bankConn, cancel := a.bank, a.bankConn, a.cancel
	a.mu.Unlock()

	bye := protocol.AgentMessage(protocol.TypeDisconnect, me)
	for _, hc := range houses {
		if err := hc.peer.Send(bye); err != nil {
			log.Debug().Err(err).Str("house", hc.info.Addr()).Msg("agent.TryDisconnect house already gone")
		}
		_ = hc.close()
	}
	if err := bank.Send(bye); err != nil {
		log.Debug().Err(err).Msg("agent.TryDisconnect bank already gone")
	}
	if bankConn != nil {
		_ = bankConn.Close()
	}
	if cancel != nil {
		cancel()
	}
	log.Info().Str("agent", me.Name).Msg("agent.TryDisconnect left all houses and the bank")
	return ctx.Err()
}

// Close drops every connection without the disconnect handshake.
func (a *Agent) Close() {
	a.mu.Lock()
	houses := make([]*houseConn, 0, len(a.houses))
	for addr, hc := range a.houses {
		houses = append(houses, hc)
		delete(a.houses, addr)
	}
	clear(a.dialing)
	bankConn, cancel := a.bankConn, a.cancel
	a.mu.Unlock()
	for _, hc := range houses {
		_ = hc.close()
	}
	if bankConn != nil {
		_ = bankConn.Close()
	}
	if cancel != nil {
		cancel()
	}
}

func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	houses := make([]string, 0, len(a.houses))
	for addr := range a.houses {
		houses = append(houses, addr)
	}
	sort.Strings(houses)
	return Status{
		Name:    a.cfg.Name,
		Account: a.account,
		Balance: a.balance,
		Houses:  houses,
		Leading: a.leadingLocked(),
	}
}

func (a *Agent) Account() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.account
}

func (a *Agent) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Listings copies the cached listing of every connected house.
func (a *Agent) Listings() map[string][]protocol.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string][]protocol.Item, len(a.houses))
	for addr, hc := range a.houses {
		out[addr] = append([]protocol.Item(nil), hc.listing...)
	}
	return out
}

func (a *Agent) Inventory() []Won {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Won(nil), a.inventory...)
}
