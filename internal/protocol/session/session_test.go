package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/danmuck/auctionctl/internal/protocol/frame"
	"github.com/danmuck/auctionctl/internal/testutil/testlog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	if got := cfg.Delay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.Delay(2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := cfg.Delay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.Delay(6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{WriteTimeout: time.Second}.WithDefaults()
	require.Equal(t, time.Second, cfg.WriteTimeout)
	require.Equal(t, DefaultConfig().SendQueueDepth, cfg.SendQueueDepth)
	require.Equal(t, DefaultConfig().Limits, cfg.Limits)
	require.Equal(t, DefaultConfig().Backoff, cfg.Backoff)
}

// echoBalance replies to BALANCE(holder) with a fixed balance and ignores the rest.
func echoBalance(_ context.Context, _ *Handler, msg protocol.Message) protocol.Message {
	if msg.Type == protocol.TypeBalance && msg.Payload.Holder != "" {
		return protocol.BalanceMessage(decimal.NewFromInt(42))
	}
	return protocol.Waiting()
}

func TestHandlerRepliesUnlessWaiting(t *testing.T) {
	testlog.Start(t)
	serverConn, clientConn := net.Pipe()
	server := NewHandler(serverConn, "bank", DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx, DispatchFunc(echoBalance)) }()

	limits := frame.DefaultLimits()
	go func() {
		_ = protocol.WriteMessage(clientConn, protocol.AgentMessage(protocol.TypeRegister, protocol.AgentInfo{Name: "a"}), 0, limits)
		_ = protocol.WriteMessage(clientConn, protocol.HolderMessage(protocol.TypeBalance, "alice"), 0, limits)
	}()

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := protocol.ReadMessage(clientConn, limits)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeBalance, reply.Type)
	require.NotNil(t, reply.Payload.Balance)
	require.Equal(t, "42", reply.Payload.Balance.String())

	require.NoError(t, clientConn.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("receive loop did not end on closed stream")
	}
}

func TestHandlerSwallowsWrongVariant(t *testing.T) {
	testlog.Start(t)
	serverConn, clientConn := net.Pipe()
	server := NewHandler(serverConn, "house", DefaultConfig())
	var mu sync.Mutex
	var seen []protocol.MessageType
	d := DispatchFunc(func(ctx context.Context, h *Handler, msg protocol.Message) protocol.Message {
		mu.Lock()
		seen = append(seen, msg.Type)
		mu.Unlock()
		return echoBalance(ctx, h, msg)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = server.Run(ctx, d) }()

	limits := frame.DefaultLimits()
	go func() {
		// BID without a bid payload never reaches the dispatcher.
		_ = protocol.WriteMessage(clientConn, protocol.AgentMessage(protocol.TypeBid, protocol.AgentInfo{Name: "x"}), 0, limits)
		_ = protocol.WriteMessage(clientConn, protocol.HolderMessage(protocol.TypeBalance, "alice"), 0, limits)
	}()
	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := protocol.ReadMessage(clientConn, limits)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []protocol.MessageType{protocol.TypeBalance}, seen)
}

func TestHandlerStopEndsLoopAfterReply(t *testing.T) {
	testlog.Start(t)
	serverConn, clientConn := net.Pipe()
	server := NewHandler(serverConn, "bank", DefaultConfig())
	d := DispatchFunc(func(_ context.Context, h *Handler, msg protocol.Message) protocol.Message {
		h.Stop()
		return protocol.HouseMessage(protocol.TypeAuctionHouseRemoved, *msg.Payload.House)
	})
	done := make(chan error, 1)
	go func() { done <- server.Run(context.Background(), d) }()

	limits := frame.DefaultLimits()
	go func() {
		_ = protocol.WriteMessage(clientConn, protocol.HouseMessage(protocol.TypeDisconnect, protocol.HouseInfo{Host: "h", Port: 1, Account: 3}), 0, limits)
	}()
	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := protocol.ReadMessage(clientConn, limits)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeAuctionHouseRemoved, reply.Type)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("stop flag not observed")
	}
	require.NoError(t, server.Send(protocol.Waiting()))
	require.ErrorIs(t, server.Send(protocol.HolderMessage(protocol.TypeBalance, "x")), ErrHandlerClosed)
}

func TestConcurrentSendsAreFramedAtomically(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := Dial(ctx, ln.Addr().String(), "agent", DefaultConfig())
	require.NoError(t, err)
	defer h.Close()
	peer := <-accepted
	defer peer.Close()

	const senders, each = 8, 25
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				bid := protocol.Bid{Account: s, Item: i, Amount: decimal.NewFromInt(int64(i))}
				assert.NoError(t, h.Send(protocol.BidMessage(protocol.TypeBid, bid)))
			}
		}(s)
	}

	lastItem := make(map[int]int)
	_ = peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	for n := 0; n < senders*each; n++ {
		msg, err := protocol.ReadMessage(peer, frame.DefaultLimits())
		require.NoError(t, err)
		require.NotNil(t, msg.Payload.Bid)
		prev, ok := lastItem[msg.Payload.Bid.Account]
		if ok {
			require.Greater(t, msg.Payload.Bid.Item, prev, "per-sender order broken")
		}
		lastItem[msg.Payload.Bid.Account] = msg.Payload.Bid.Item
	}
	wg.Wait()
}

func TestDialGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := DefaultConfig()
	cfg.MaxConnectAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 1}
	_, err = Dial(context.Background(), addr, "agent", cfg)
	require.ErrorIs(t, err, ErrDialFailed)

	_, err = Dial(context.Background(), " ", "agent", cfg)
	require.ErrorIs(t, err, ErrAddressRequired)
}
