package agent

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/danmuck/auctionctl/internal/testutil/testlog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	id string

	mu   sync.Mutex
	sent []protocol.Message
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(msg protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePeer) ofType(t protocol.MessageType) []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.Message
	for _, m := range p.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

const houseAddr = "127.0.0.1:7100"

// offline builds an agent wired to fake bank and house peers.
func offline(t *testing.T, balance int64) (*Agent, *fakePeer, *fakePeer, *recorder) {
	t.Helper()
	rec := &recorder{}
	a := New(Config{Name: "alice", InitialBalance: dec(balance)}, rec)
	bank := &fakePeer{id: "bank"}
	house := &fakePeer{id: "house"}
	a.bank = bank
	a.Handle(context.Background(), "", protocol.AccountMessage(protocol.TypeNewAccount, protocol.AccountInfo{
		Name: "alice", Account: 1, Balance: dec(balance),
	}))
	a.houses[houseAddr] = &houseConn{
		info:  protocol.HouseInfo{Host: "127.0.0.1", Port: 7100, Account: 2},
		peer:  house,
		close: func() error { return nil },
	}
	a.Handle(context.Background(), houseAddr, protocol.ListingMessage([]protocol.Item{
		{Number: 1, MinBid: dec(5), HouseAccount: 2},
		{Number: 2, MinBid: dec(500), HouseAccount: 2},
	}))
	return a, bank, house, rec
}

func TestBidOnItemChecksCache(t *testing.T) {
	testlog.Start(t)
	a, _, house, _ := offline(t, 100)

	require.ErrorIs(t, a.BidOnItem("127.0.0.1:1", 1, dec(10)), ErrUnknownHouse)
	require.ErrorIs(t, a.BidOnItem(houseAddr, 9, dec(10)), ErrUnknownItem)
	require.ErrorIs(t, a.BidOnItem(houseAddr, 1, dec(101)), ErrInsufficientFunds)
	require.Empty(t, house.ofType(protocol.TypeBid))

	require.NoError(t, a.BidOnItem(houseAddr, 1, dec(10)))
	bids := house.ofType(protocol.TypeBid)
	require.Len(t, bids, 1)
	require.Equal(t, 1, bids[0].Payload.Bid.Account)
	require.Equal(t, "10", bids[0].Payload.Bid.Amount.String())
}

func TestWinnerRequestsTransfer(t *testing.T) {
	testlog.Start(t)
	a, bank, _, rec := offline(t, 100)
	start := time.Now()
	item := protocol.Item{Number: 1, CurrentBid: dec(15), Bidder: "alice", BidderAccount: 1, BidTime: &start, HouseAccount: 2}

	a.Handle(context.Background(), houseAddr, protocol.ItemMessage(protocol.TypeWinner, item))
	transfers := bank.ofType(protocol.TypeTransferFunds)
	require.Len(t, transfers, 1)
	tr := transfers[0].Payload.Transfer
	require.Equal(t, 1, tr.From)
	require.Equal(t, 2, tr.To)
	require.Equal(t, "15", tr.Amount.String())
	require.Equal(t, 1, a.Leading(), "won but unpaid")

	a.Handle(context.Background(), "", protocol.BidMessage(protocol.TypeFundsTransferred, protocol.Bid{Account: 1, Item: 1, Amount: dec(15)}))
	inv := a.Inventory()
	require.Len(t, inv, 1)
	require.True(t, inv[0].Paid)
	require.Equal(t, houseAddr, inv[0].House)
	require.Zero(t, a.Leading())
	require.Contains(t, rec.kinds(), EventWon)
	require.Contains(t, rec.kinds(), EventTransferred)
	require.NotEmpty(t, bank.ofType(protocol.TypeBalance))
}

func TestFailedTransferDropsInventory(t *testing.T) {
	testlog.Start(t)
	a, _, _, rec := offline(t, 100)
	item := protocol.Item{Number: 1, CurrentBid: dec(15), HouseAccount: 2}
	a.Handle(context.Background(), houseAddr, protocol.ItemMessage(protocol.TypeWinner, item))

	a.Handle(context.Background(), "", protocol.BidMessage(protocol.TypeFundsNotTransferred, protocol.Bid{Account: 1, Item: 1, Amount: dec(15)}))
	require.Empty(t, a.Inventory())
	require.Contains(t, rec.kinds(), EventTransferFailed)
}

func TestTryDisconnectRefusesWhileLeading(t *testing.T) {
	testlog.Start(t)
	a, bank, house, _ := offline(t, 100)
	start := time.Now()
	a.Handle(context.Background(), houseAddr, protocol.ListingMessage([]protocol.Item{
		{Number: 1, MinBid: dec(11), CurrentBid: dec(10), BidderAccount: 1, Bidder: "alice", BidTime: &start},
	}))

	err := a.TryDisconnect(context.Background())
	require.ErrorIs(t, err, ErrLeadingBids)
	require.Empty(t, bank.ofType(protocol.TypeDisconnect))

	// Someone else took the lead.
	a.Handle(context.Background(), houseAddr, protocol.ListingMessage([]protocol.Item{
		{Number: 1, MinBid: dec(12), CurrentBid: dec(11), BidderAccount: 7, Bidder: "bob", BidTime: &start},
	}))
	require.NoError(t, a.TryDisconnect(context.Background()))
	require.Len(t, house.ofType(protocol.TypeDisconnect), 1)
	require.Len(t, bank.ofType(protocol.TypeDisconnect), 1)
	require.Empty(t, a.Listings())
}

func TestBalanceAndHouseLeft(t *testing.T) {
	testlog.Start(t)
	a, _, _, rec := offline(t, 100)

	a.Handle(context.Background(), "", protocol.BalanceMessage(dec(90)))
	require.Equal(t, "90", a.Balance().String())

	a.Handle(context.Background(), houseAddr, protocol.HouseMessage(protocol.TypeDisconnect, protocol.HouseInfo{Host: "127.0.0.1", Port: 7100}))
	require.Empty(t, a.Listings())
	require.Contains(t, rec.kinds(), EventHouseLeft)
}

func TestAutoBidderSkipsLedAndUnaffordable(t *testing.T) {
	testlog.Start(t)
	a, _, house, _ := offline(t, 100)
	b := NewAutoBidder(a, time.Millisecond, rand.New(rand.NewSource(3)))

	addr, item, err := b.Step()
	require.NoError(t, err)
	require.Equal(t, houseAddr, addr)
	require.Equal(t, 1, item.Number, "item 2 costs more than the balance")
	require.Equal(t, "5", house.ofType(protocol.TypeBid)[0].Payload.Bid.Amount.String())

	start := time.Now()
	a.Handle(context.Background(), houseAddr, protocol.ListingMessage([]protocol.Item{
		{Number: 1, MinBid: dec(6), CurrentBid: dec(5), BidderAccount: 1, BidTime: &start},
	}))
	_, _, err = b.Step()
	require.ErrorIs(t, err, ErrUnknownItem)
}

func TestDirectoryWithUnreachableHouseDoesNotStallBank(t *testing.T) {
	testlog.Start(t)
	a, _, _, _ := offline(t, 100)
	a.cfg.Session = session.Config{
		ConnectTimeout:     time.Second,
		MaxConnectAttempts: 3,
		Backoff:            session.BackoffConfig{InitialDelay: 200 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second},
	}.WithDefaults()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dead := protocol.HouseInfo{Host: "127.0.0.1", Port: port, Account: 3}
	directory := protocol.HousesMessage([]protocol.HouseInfo{
		{Host: "127.0.0.1", Port: 7100, Account: 2},
		dead,
	})

	start := time.Now()
	a.Handle(ctx, "", directory)
	a.Handle(ctx, "", protocol.BalanceMessage(dec(42)))
	require.Less(t, time.Since(start), 200*time.Millisecond)
	require.True(t, a.Balance().Equal(dec(42)))

	// A second broadcast while the dial is in flight does not dial again.
	a.mu.Lock()
	_, inFlight := a.dialing[dead.Addr()]
	a.mu.Unlock()
	require.True(t, inFlight)
	a.Handle(ctx, "", directory)

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.dialing) == 0
	}, 5*time.Second, 20*time.Millisecond)
	require.NotContains(t, a.Listings(), dead.Addr())
	require.Contains(t, a.Listings(), houseAddr)
}
