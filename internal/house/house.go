package house

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrNotRegistered = errors.New("house: bidder not registered")
	ErrNoBank        = errors.New("house: no bank connection")
)

// Config is the bid engine's configuration.
type Config struct {
	Host        string
	Port        int
	BidWindow   time.Duration
	ActiveSlots int
}

// House is one auction house's bid engine. Every state change runs under mu,
// including timer firings.
type House struct {
	mu sync.Mutex

	info    protocol.HouseInfo
	bank    Peer
	listing *Listing
	clients *Clients
	timers  *TimerEngine
	now     func() time.Time

	registered bool
	closing    bool
	closed     chan struct{}
	closedOnce sync.Once
}

// New builds a house offering items. bank is the connection to the bank; it
// may be nil until SetBank is called.
func New(cfg Config, items []protocol.Item, bank Peer) *House {
	h := &House{
		info:    protocol.HouseInfo{Host: cfg.Host, Port: cfg.Port},
		bank:    bank,
		listing: NewListing(items, cfg.ActiveSlots),
		clients: NewClients(),
		now:     time.Now,
		closed:  make(chan struct{}),
	}
	h.timers = NewTimerEngine(cfg.BidWindow, h.onTimer)
	return h
}

func (h *House) SetBank(bank Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bank = bank
}

// SetAddr sets the endpoint advertised to the bank and to agents.
func (h *House) SetAddr(host string, port int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.info.Host = host
	h.info.Port = port
}

// Register announces the house to the bank.
func (h *House) Register() error {
	h.mu.Lock()
	info, bank := h.info, h.bank
	h.mu.Unlock()
	if bank == nil {
		return ErrNoBank
	}
	return bank.Send(protocol.HouseMessage(protocol.TypeNewAuctionHouse, info))
}

// Dispatch adapts Handle to session.Dispatcher.
func (h *House) Dispatch(ctx context.Context, hdl *session.Handler, msg protocol.Message) protocol.Message {
	return h.Handle(ctx, hdl, msg)
}

// Handle processes one message from an agent or from the bank.
func (h *House) Handle(_ context.Context, from Peer, msg protocol.Message) protocol.Message {
	// Run validates frames off the wire; this covers callers that invoke
	// Handle directly.
	if err := protocol.Validate(msg); err != nil {
		return protocol.Waiting()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	p := msg.Payload
	fromBank := h.bank != nil && from.ID() == h.bank.ID()
	if fromBank {
		return h.handleBankLocked(msg)
	}

	switch msg.Type {
	case protocol.TypeRegister:
		h.clients.Add(*p.Agent, from)
		log.Info().Str("agent", p.Agent.Name).Int("account", p.Agent.Account).Msg("house.Handle client registered")
		return protocol.ListingMessage(h.listing.Items())
	case protocol.TypeBid:
		return h.bidLocked(from, *p.Bid)
	case protocol.TypeDisconnect:
		if p.Agent != nil {
			h.clients.Remove(p.Agent.Account)
			log.Info().Str("agent", p.Agent.Name).Msg("house.Handle client left")
			from.Stop()
			return protocol.HouseMessage(protocol.TypeDisconnect, h.info)
		}
	default:
		log.Debug().Str("type", msg.Type.String()).Str("conn", from.ID()).Msg("house.Handle ignoring client message")
	}
	return protocol.Waiting()
}

func (h *House) handleBankLocked(msg protocol.Message) protocol.Message {
	p := msg.Payload
	switch msg.Type {
	case protocol.TypeNewAuctionHouse:
		h.info.Account = p.House.Account
		h.info.Balance = p.House.Balance
		h.listing.SetHouseAccount(p.House.Account)
		h.registered = true
		log.Info().Int("account", h.info.Account).Str("addr", h.info.Addr()).Msg("house.Handle registered with bank")
	case protocol.TypeFundsHeld:
		h.fundsHeldLocked(*p.Bid)
	case protocol.TypeFundsNotHeld:
		bid := *p.Bid
		observability.RecordBid(observability.BidRejectedFunds)
		if _, peer, ok := h.clients.Get(bid.Account); ok {
			_ = peer.Send(protocol.BidMessage(protocol.TypeBidRejected, bid.WithStatus("Insufficient funds")))
		}
	case protocol.TypeFundsTransferred:
		h.soldLocked(p.Bid.Item)
	case protocol.TypeFundsNotTransferred:
		number := 0
		if p.Bid != nil {
			number = p.Bid.Item
		} else if p.Transfer != nil {
			number = p.Transfer.Item.Number
		}
		h.unsoldLocked(number)
	case protocol.TypeBalance:
		if p.Balance != nil {
			h.info.Balance = *p.Balance
			log.Info().Str("balance", p.Balance.String()).Msg("house.Handle balance updated")
		}
	case protocol.TypeAccountBalance:
		if p.Account != nil {
			h.info.Balance = p.Account.Balance
			log.Info().Str("balance", p.Account.Balance.String()).Msg("house.Handle balance updated")
		}
	case protocol.TypeFundsUnblocked:
		log.Info().Int("account", p.Bid.Account).Str("amount", p.Bid.Amount.String()).Msg("house.Handle funds released")
	case protocol.TypeFundsNotUnblocked:
		log.Warn().Int("account", p.Bid.Account).Str("amount", p.Bid.Amount.String()).Msg("house.Handle bank refused release")
	case protocol.TypeAuctionHouseRemoved:
		log.Info().Str("addr", p.House.Addr()).Msg("house.Handle bank removed house")
	default:
		log.Debug().Str("type", msg.Type.String()).Msg("house.Handle ignoring bank message")
	}
	return protocol.Waiting()
}

// bidLocked answers a BID. Only qualifying bids reach the bank.
func (h *House) bidLocked(from Peer, bid protocol.Bid) protocol.Message {
	if _, peer, ok := h.clients.Get(bid.Account); !ok || peer.ID() != from.ID() {
		observability.RecordBid(observability.BidRejectedClosed)
		log.Info().Err(ErrNotRegistered).Int("account", bid.Account).Msg("house.bid rejected")
		return protocol.BidMessage(protocol.TypeBidRejected, bid.WithStatus("Not registered"))
	}
	if err := h.listing.Qualifies(bid); err != nil {
		outcome := observability.BidRejectedClosed
		status := "Item unavailable"
		if errors.Is(err, ErrBidTooLow) {
			outcome = observability.BidRejectedLow
			status = "Below minimum bid"
		}
		observability.RecordBid(outcome)
		log.Info().Err(err).Int("account", bid.Account).Int("item", bid.Item).Msg("house.bid rejected")
		return protocol.BidMessage(protocol.TypeBidRejected, bid.WithStatus(status))
	}
	if h.bank == nil {
		return protocol.BidMessage(protocol.TypeBidRejected, bid.WithStatus("Bank unavailable"))
	}
	if err := h.bank.Send(protocol.BidMessage(protocol.TypeHoldFunds, bid)); err != nil {
		log.Warn().Err(err).Msg("house.bid hold request failed")
		return protocol.BidMessage(protocol.TypeBidRejected, bid.WithStatus("Bank unavailable"))
	}
	return protocol.Waiting()
}

// fundsHeldLocked installs a bid the bank has backed.
func (h *House) fundsHeldLocked(bid protocol.Bid) {
	agent, peer, ok := h.clients.Get(bid.Account)
	if !ok {
		log.Warn().Int("account", bid.Account).Msg("house.fundsHeld bidder gone, releasing hold")
		h.releaseLocked(bid)
		return
	}

	prev, next, err := h.listing.Accept(bid, agent.Name, h.now())
	if err != nil {
		// The item moved on while the bank was holding funds.
		observability.RecordBid(observability.BidRejectedClosed)
		log.Info().Err(err).Int("account", bid.Account).Int("item", bid.Item).Msg("house.fundsHeld bid no longer qualifies")
		h.releaseLocked(bid)
		_ = peer.Send(protocol.BidMessage(protocol.TypeBidRejected, bid.WithStatus("Outpaced")))
		return
	}

	if armed, ok := h.timers.Cancel(bid.Item); ok {
		outbid := protocol.Bid{
			Account: prev.BidderAccount,
			Item:    prev.Number,
			Amount:  prev.CurrentBid,
			Status:  "Outbid",
		}
		observability.RecordBid(observability.BidOutbid)
		if err := armed.Bidder.Send(protocol.BidMessage(protocol.TypeOutbid, outbid)); err != nil {
			log.Debug().Err(err).Int("account", outbid.Account).Msg("house.fundsHeld outbid notice failed")
		}
		h.releaseLocked(outbid)
	}

	observability.RecordBid(observability.BidAccepted)
	log.Info().
		Int("account", bid.Account).
		Int("item", bid.Item).
		Str("amount", bid.Amount.String()).
		Str("min_bid", next.MinBid.String()).
		Msg("house.fundsHeld bid accepted")
	_ = peer.Send(protocol.BidMessage(protocol.TypeBidAccepted, bid.WithStatus("Accepted")))
	h.timers.Add(next, peer)
	h.clients.Broadcast(protocol.ListingMessage(h.listing.Items()))
}

func (h *House) releaseLocked(bid protocol.Bid) {
	if h.bank == nil {
		return
	}
	observability.RecordBid(observability.BidReleased)
	if err := h.bank.Send(protocol.BidMessage(protocol.TypeReleaseFunds, bid)); err != nil {
		log.Warn().Err(err).Int("account", bid.Account).Msg("house.release request failed")
	}
}

// onTimer runs on the timer goroutine.
func (h *House) onTimer(number int, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	armed, ok := h.timers.Take(number, gen)
	if !ok {
		return
	}
	item, ok := h.listing.BeginSettlement(number)
	if !ok {
		return
	}
	err := armed.Bidder.Send(protocol.ItemMessage(protocol.TypeWinner, item))
	if err == nil {
		observability.RecordBid(observability.BidWon)
		log.Info().Int("item", number).Str("winner", item.Bidder).Str("amount", item.CurrentBid.String()).Msg("house.onTimer winner notified")
		return
	}

	log.Warn().Err(err).Int("item", number).Str("winner", item.Bidder).Msg("house.onTimer winner unreachable, reopening item")
	h.releaseLocked(protocol.Bid{Account: item.BidderAccount, Item: number, Amount: item.CurrentBid})
	h.listing.Reset(number)
	h.clients.Broadcast(protocol.ListingMessage(h.listing.Items()))
	h.maybeFinishLocked()
}

func (h *House) soldLocked(number int) {
	item, ok := h.listing.Sold(number)
	if !ok {
		log.Warn().Int("item", number).Msg("house.sold unknown item")
		return
	}
	observability.RecordBid(observability.BidSold)
	log.Info().Int("item", number).Str("buyer", item.Bidder).Str("amount", item.CurrentBid.String()).Msg("house.sold item sold")
	h.clients.Broadcast(protocol.ListingMessage(h.listing.Items()))
	if h.bank != nil {
		_ = h.bank.Send(protocol.HolderMessage(protocol.TypeBalance, h.info.Name()))
	}
	h.maybeFinishLocked()
}

func (h *House) unsoldLocked(number int) {
	if _, ok := h.listing.Reset(number); !ok {
		log.Warn().Int("item", number).Msg("house.unsold unknown item")
		return
	}
	observability.RecordBid(observability.BidUnsold)
	log.Info().Int("item", number).Msg("house.unsold transfer failed, item reopened")
	h.clients.Broadcast(protocol.ListingMessage(h.listing.Items()))
	h.maybeFinishLocked()
}

// Forget drops registrations made over a connection that went away.
func (h *House) Forget(peer Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := h.clients.RemovePeer(peer.ID()); n > 0 {
		log.Info().Str("conn", peer.ID()).Int("clients", n).Msg("house.Forget client dropped")
	}
}

// Shutdown starts a graceful close: no backlog items are offered any more
// and the house leaves once no item has an active bid.
func (h *House) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return
	}
	h.closing = true
	h.listing.ClearBacklog()
	log.Info().Msg("house.Shutdown requested")
	h.maybeFinishLocked()
}

func (h *House) maybeFinishLocked() {
	if !h.closing {
		return
	}
	select {
	case <-h.closed:
		return
	default:
	}

	if h.listing.HasActiveBids() {
		h.listing.PruneUnbid()
		h.clients.Broadcast(protocol.ListingMessage(h.listing.Items()))
		log.Info().Int("items", len(h.listing.Items())).Msg("house.Shutdown waiting on active bids")
		return
	}

	h.listing.PruneUnbid()
	bye := protocol.HouseMessage(protocol.TypeDisconnect, h.info)
	h.clients.Broadcast(protocol.ListingMessage(nil))
	h.clients.Broadcast(bye)
	if h.bank != nil {
		_ = h.bank.Send(bye)
	}
	h.timers.StopAll()
	h.closedOnce.Do(func() { close(h.closed) })
	log.Info().Str("addr", h.info.Addr()).Msg("house.Shutdown complete")
}

// Closed is closed once the house has said goodbye.
func (h *House) Closed() <-chan struct{} {
	return h.closed
}

func (h *House) Closing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func (h *House) Registered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered
}

func (h *House) Info() protocol.HouseInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

func (h *House) Balance() decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info.Balance
}

func (h *House) Items() []protocol.Item {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listing.Items()
}

func (h *House) Backlog() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listing.Backlog()
}

func (h *House) Clients() []protocol.AgentInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients.Snapshot()
}

// Armed reports the timer state for an item.
func (h *House) Armed(number int) (ArmedBid, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timers.Armed(number)
}
