package bank

import (
	"context"
	"sync"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Peer is the bank's view of one connection.
type Peer interface {
	ID() string
	Send(protocol.Message) error
	Stop()
}

type agentPeer struct {
	peer    Peer
	name    string
	account int
}

type housePeer struct {
	peer Peer
	info protocol.HouseInfo
}

// Bank answers ledger requests from agents and auction houses and keeps the
// auction-house directory that agents use to find houses.
type Bank struct {
	ledger *Ledger

	mu     sync.RWMutex
	agents map[string]agentPeer // by connection id
	houses []housePeer          // join order
}

func New(ledger *Ledger) *Bank {
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Bank{
		ledger: ledger,
		agents: make(map[string]agentPeer),
	}
}

func (b *Bank) Ledger() *Ledger {
	return b.ledger
}

// Dispatch adapts Handle to session.Dispatcher.
func (b *Bank) Dispatch(ctx context.Context, h *session.Handler, msg protocol.Message) protocol.Message {
	return b.Handle(ctx, h, msg)
}

// Handle computes the bank's reply to one message from peer.
func (b *Bank) Handle(ctx context.Context, from Peer, msg protocol.Message) protocol.Message {
	p := msg.Payload
	switch msg.Type {
	case protocol.TypeNewAccount:
		if p.Account != nil {
			return b.openAgent(from, *p.Account)
		}
	case protocol.TypeNewAuctionHouse:
		if p.House != nil {
			return b.openHouse(from, *p.House)
		}
	case protocol.TypeHoldFunds:
		if p.Bid != nil {
			return b.hold(ctx, *p.Bid)
		}
	case protocol.TypeReleaseFunds:
		if p.Bid != nil {
			return b.release(ctx, *p.Bid)
		}
	case protocol.TypeTransferFunds:
		if p.Transfer != nil {
			return b.transfer(ctx, *p.Transfer)
		}
	case protocol.TypeBalance:
		return b.balance(p)
	case protocol.TypeAccountBalance:
		if p.Agent != nil {
			if acct, ok := b.ledger.Lookup(p.Agent.Name); ok {
				return protocol.AccountMessage(protocol.TypeAccountBalance, protocol.AccountInfo{
					Name:    acct.Holder(),
					Account: acct.Number(),
					Balance: acct.Total(),
				})
			}
		}
	case protocol.TypeListAuctionHouses:
		return protocol.HousesMessage(b.Houses())
	case protocol.TypeDisconnect:
		return b.disconnect(from, p)
	}
	return protocol.Waiting()
}

func (b *Bank) openAgent(from Peer, req protocol.AccountInfo) protocol.Message {
	acct, _, err := b.ledger.Create(req.Name, req.Balance)
	if err != nil {
		log.Warn().Err(err).Str("conn", from.ID()).Msg("bank.openAgent refused")
		return protocol.Waiting()
	}
	b.mu.Lock()
	b.agents[from.ID()] = agentPeer{peer: from, name: acct.Holder(), account: acct.Number()}
	b.mu.Unlock()

	// The account number must reach the agent before any directory update
	// that would make it register with houses.
	_ = from.Send(protocol.AccountMessage(protocol.TypeNewAccount, protocol.AccountInfo{
		Name:    acct.Holder(),
		Account: acct.Number(),
		Balance: acct.Available(),
	}))
	b.broadcastHouses()
	return protocol.Waiting()
}

func (b *Bank) openHouse(from Peer, req protocol.HouseInfo) protocol.Message {
	acct, _ := b.ledger.CreateHouse(req.Account)
	info := protocol.HouseInfo{
		Host:    req.Host,
		Port:    req.Port,
		Account: acct.Number(),
		Balance: acct.Available(),
	}

	b.mu.Lock()
	kept := b.houses[:0]
	for _, h := range b.houses {
		if h.info.Addr() != info.Addr() && h.info.Account != info.Account {
			kept = append(kept, h)
		}
	}
	b.houses = append(kept, housePeer{peer: from, info: info})
	b.mu.Unlock()

	log.Info().Int("account", info.Account).Str("addr", info.Addr()).Msg("bank.openHouse registered auction house")
	_ = from.Send(protocol.HouseMessage(protocol.TypeNewAuctionHouse, info))
	b.broadcastHouses()
	return protocol.Waiting()
}

func (b *Bank) hold(ctx context.Context, bid protocol.Bid) protocol.Message {
	ok, err := b.ledger.Hold(ctx, bid.Account, bid.Amount)
	if err != nil || !ok {
		log.Info().Err(err).Int("account", bid.Account).Str("amount", bid.Amount.String()).Msg("bank.hold refused")
		return protocol.BidMessage(protocol.TypeFundsNotHeld, bid.WithStatus("Rejected"))
	}
	log.Info().Int("account", bid.Account).Int("item", bid.Item).Str("amount", bid.Amount.String()).Msg("bank.hold funds held")
	return protocol.BidMessage(protocol.TypeFundsHeld, bid.WithStatus("Accepted"))
}

func (b *Bank) release(ctx context.Context, bid protocol.Bid) protocol.Message {
	ok, err := b.ledger.Release(ctx, bid.Account, bid.Amount)
	if err != nil || !ok {
		log.Warn().Err(err).Int("account", bid.Account).Str("amount", bid.Amount.String()).Msg("bank.release refused")
		return protocol.BidMessage(protocol.TypeFundsNotUnblocked, bid)
	}
	log.Info().Int("account", bid.Account).Str("amount", bid.Amount.String()).Msg("bank.release funds unblocked")
	return protocol.BidMessage(protocol.TypeFundsUnblocked, bid)
}

// transfer settles a won item. The outcome goes back to the paying agent and
// to the receiving house, whichever way it went.
func (b *Bank) transfer(ctx context.Context, tr protocol.Transfer) protocol.Message {
	ok, err := b.ledger.Transfer(ctx, tr.From, tr.To, tr.Amount)
	bid := protocol.Bid{Account: tr.From, Item: tr.Item.Number, Amount: tr.Amount}
	typ := protocol.TypeFundsTransferred
	if err != nil || !ok {
		typ = protocol.TypeFundsNotTransferred
		bid.Status = "Not Transferred"
		log.Warn().Err(err).Int("from", tr.From).Int("to", tr.To).Str("amount", tr.Amount.String()).Msg("bank.transfer failed")
	} else {
		bid.Status = "Transferred"
		log.Info().Int("from", tr.From).Int("to", tr.To).Str("amount", tr.Amount.String()).Msg("bank.transfer done")
	}

	if house, found := b.housePeer(tr.To); found {
		if err := house.Send(protocol.BidMessage(typ, bid)); err != nil {
			log.Warn().Err(err).Int("house", tr.To).Msg("bank.transfer notify house failed")
		}
	}
	return protocol.BidMessage(typ, bid)
}

func (b *Bank) balance(p protocol.Payload) protocol.Message {
	holder := p.Holder
	if p.Agent != nil {
		holder = p.Agent.Name
	}
	if holder == "" {
		return protocol.Waiting()
	}
	acct, ok := b.ledger.Lookup(holder)
	if !ok {
		log.Debug().Str("holder", holder).Msg("bank.balance unknown holder")
		return protocol.Waiting()
	}
	return protocol.BalanceMessage(acct.Available())
}

func (b *Bank) disconnect(from Peer, p protocol.Payload) protocol.Message {
	reply := protocol.Waiting()
	switch {
	case p.Agent != nil:
		b.mu.Lock()
		delete(b.agents, from.ID())
		b.mu.Unlock()
		log.Info().Str("agent", p.Agent.Name).Msg("bank.disconnect agent left")
	case p.House != nil:
		b.removeHouse(func(h housePeer) bool {
			return h.info.Addr() == p.House.Addr() || h.peer.ID() == from.ID()
		})
		reply = protocol.HouseMessage(protocol.TypeAuctionHouseRemoved, *p.House)
		log.Info().Str("addr", p.House.Addr()).Msg("bank.disconnect auction house left")
		b.broadcastHouses()
	}
	from.Stop()
	return reply
}

// Forget drops a connection that closed without saying goodbye.
func (b *Bank) Forget(peer Peer) {
	b.mu.Lock()
	delete(b.agents, peer.ID())
	b.mu.Unlock()
	if b.removeHouse(func(h housePeer) bool { return h.peer.ID() == peer.ID() }) {
		b.broadcastHouses()
	}
}

func (b *Bank) removeHouse(match func(housePeer) bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.houses[:0]
	removed := false
	for _, h := range b.houses {
		if match(h) {
			removed = true
			continue
		}
		kept = append(kept, h)
	}
	b.houses = kept
	return removed
}

func (b *Bank) housePeer(account int) (Peer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.houses {
		if h.info.Account == account {
			return h.peer, true
		}
	}
	return nil, false
}

// Houses returns the active auction-house directory.
func (b *Bank) Houses() []protocol.HouseInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]protocol.HouseInfo, 0, len(b.houses))
	for _, h := range b.houses {
		out = append(out, h.info)
	}
	return out
}

// Agents returns the number of connected agents.
func (b *Bank) Agents() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.agents)
}

func (b *Bank) broadcastHouses() {
	b.mu.RLock()
	peers := make([]Peer, 0, len(b.agents))
	for _, a := range b.agents {
		peers = append(peers, a.peer)
	}
	houses := make([]protocol.HouseInfo, 0, len(b.houses))
	for _, h := range b.houses {
		houses = append(houses, h.info)
	}
	b.mu.RUnlock()

	msg := protocol.HousesMessage(houses)
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Debug().Err(err).Str("conn", p.ID()).Msg("bank.broadcastHouses send failed")
		}
	}
}
