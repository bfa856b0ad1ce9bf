package agent

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/bank"
	"github.com/danmuck/auctionctl/internal/house"
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/danmuck/auctionctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

const e2eCatalog = `active_slots = 3

[[items]]
description = "Lot 1"
min_bid = 5

[[items]]
description = "Lot 2"
min_bid = 5

[[items]]
description = "Lot 3"
min_bid = 5

[[items]]
description = "Lot 4"
min_bid = 5
`

type cluster struct {
	bank     *bank.Service
	house    *house.Service
	bankAddr string
}

func startCluster(t *testing.T, ctx context.Context, window time.Duration) cluster {
	t.Helper()
	bankSvc := bank.NewServiceWithConfig(bank.ServiceConfig{ListenAddr: "127.0.0.1:0"})
	bankLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = bankSvc.Serve(ctx, bankLn) }()

	catalog := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(catalog, []byte(e2eCatalog), 0o600))
	houseSvc, err := house.NewServiceWithConfig(house.ServiceConfig{
		ListenAddr:    "127.0.0.1:0",
		AdvertiseHost: "127.0.0.1",
		BankAddr:      bankLn.Addr().String(),
		BidWindow:     window,
		CatalogFile:   catalog,
	})
	require.NoError(t, err)
	houseLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = houseSvc.Serve(ctx, houseLn) }()

	require.Eventually(t, houseSvc.House().Registered, 3*time.Second, 10*time.Millisecond)
	return cluster{bank: bankSvc, house: houseSvc, bankAddr: bankLn.Addr().String()}
}

func startAgent(t *testing.T, ctx context.Context, c cluster, name string) *Agent {
	t.Helper()
	a := New(Config{
		Name:           name,
		InitialBalance: dec(100),
		BankAddr:       c.bankAddr,
		Session:        session.Config{MaxConnectAttempts: 3},
	}, nil)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(a.Close)
	addr := c.house.Addr()
	require.Eventually(t, func() bool {
		return len(a.Listings()[addr]) == 3
	}, 3*time.Second, 10*time.Millisecond)
	return a
}

func listedItem(a *Agent, addr string, number int) (protocol.Item, bool) {
	return protocol.Listing{Items: a.Listings()[addr]}.Find(number)
}

func TestEndToEndAuction(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := startCluster(t, ctx, 1500*time.Millisecond)
	addr := c.house.Addr()
	alice := startAgent(t, ctx, c, "alice")
	bob := startAgent(t, ctx, c, "bob")

	// A: a bid at the minimum is held and accepted.
	require.NoError(t, alice.BidOnItem(addr, 1, dec(10)))
	require.Eventually(t, func() bool {
		return alice.Balance().Equal(dec(90))
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		it, ok := listedItem(bob, addr, 1)
		return ok && it.BidderAccount == alice.Account()
	}, 3*time.Second, 10*time.Millisecond)

	// B: a higher bid outbids alice and releases her hold.
	require.NoError(t, bob.BidOnItem(addr, 1, dec(15)))
	require.Eventually(t, func() bool {
		return bob.Balance().Equal(dec(85))
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		alice.RequestBalance()
		return alice.Balance().Equal(dec(100))
	}, 3*time.Second, 20*time.Millisecond)

	// C: the timer names bob the winner; the bank settles and the house restocks.
	require.Eventually(t, func() bool {
		inv := bob.Inventory()
		return len(inv) == 1 && inv[0].Paid
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, bob.Inventory()[0].Item.Number)
	require.True(t, bob.Inventory()[0].Item.CurrentBid.Equal(dec(15)))

	require.Eventually(t, func() bool {
		items := c.house.House().Items()
		_, sold := protocol.Listing{Items: items}.Find(1)
		_, promoted := protocol.Listing{Items: items}.Find(4)
		return !sold && promoted
	}, 3*time.Second, 10*time.Millisecond)

	bobAcct, ok := c.bank.Bank().Ledger().Account(bob.Account())
	require.True(t, ok)
	require.True(t, bobAcct.Total().Equal(dec(85)))
	require.True(t, bobAcct.Blocked().IsZero())

	houseAcct, ok := c.bank.Bank().Ledger().Account(c.house.House().Info().Account)
	require.True(t, ok)
	require.True(t, houseAcct.Total().Equal(dec(15)))
	require.Eventually(t, func() bool {
		return c.house.House().Balance().Equal(dec(15))
	}, 3*time.Second, 10*time.Millisecond)

	aliceAcct, _ := c.bank.Bank().Ledger().Account(alice.Account())
	require.True(t, aliceAcct.Available().Equal(dec(100)))

	// Nobody leads anything now, so both agents can leave.
	require.Eventually(t, func() bool { return bob.Leading() == 0 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, alice.TryDisconnect(ctx))
	require.NoError(t, bob.TryDisconnect(ctx))
	require.Eventually(t, func() bool { return len(c.house.House().Clients()) == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestEndToEndHouseShutdown(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := startCluster(t, ctx, time.Minute)
	alice := startAgent(t, ctx, c, "alice")
	require.Len(t, c.bank.Bank().Houses(), 1)

	c.house.House().Shutdown()
	select {
	case <-c.house.House().Closed():
	case <-time.After(3 * time.Second):
		t.Fatal("idle house did not close")
	}
	require.Eventually(t, func() bool { return len(c.bank.Bank().Houses()) == 0 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(alice.Listings()) == 0 }, 3*time.Second, 10*time.Millisecond)
}
