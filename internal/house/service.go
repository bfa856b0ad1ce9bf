package house

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/auctionctl/internal/config"
	"github.com/danmuck/auctionctl/internal/node"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrBankClosed = errors.New("house: bank connection closed")

// ServiceConfig configures the auction-house process.
type ServiceConfig struct {
	ListenAddr      string
	AdvertiseHost   string
	BankAddr        string
	AdminListenAddr string
	CORSOrigins     []string
	BidWindow       time.Duration
	ActiveSlots     int
	TotalItems      int
	CatalogFile     string
	ShutdownTimeout time.Duration
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      ":5555",
		AdvertiseHost:   "127.0.0.1",
		BankAddr:        "127.0.0.1:4444",
		BidWindow:       DefaultBidWindow,
		ActiveSlots:     config.DefaultActiveSlots,
		TotalItems:      config.DefaultTotalItems,
		ShutdownTimeout: 2 * time.Minute,
		Session:         session.DefaultConfig(),
	}
}

// Service runs one auction house: its bank connection, the agent accept
// loop and the optional admin surface.
type Service struct {
	cfg   ServiceConfig
	house *House
	node  *node.Base

	connsMu sync.Mutex
	conns   map[*session.Handler]struct{}

	clientCount atomic.Int64
}

// NewServiceWithConfig loads the item catalog (or generates one) and builds
// the house. Host and port are fixed once Serve knows its listener.
func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if strings.TrimSpace(cfg.AdvertiseHost) == "" {
		cfg.AdvertiseHost = def.AdvertiseHost
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	cfg.Session = cfg.Session.WithDefaults()

	var cat config.Catalog
	if path := strings.TrimSpace(cfg.CatalogFile); path != "" {
		loaded, err := config.LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		cat = loaded
	} else {
		cat = config.GenerateCatalog(cfg.TotalItems, cfg.ActiveSlots, rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	if cfg.ActiveSlots <= 0 {
		cfg.ActiveSlots = cat.ActiveSlots
	}

	s := &Service{
		cfg:   cfg,
		conns: make(map[*session.Handler]struct{}),
	}
	s.house = New(Config{
		Host:        cfg.AdvertiseHost,
		BidWindow:   cfg.BidWindow,
		ActiveSlots: cfg.ActiveSlots,
	}, config.ListingItems(cat), nil)
	s.node = node.NewBase("house", "house", cfg.CORSOrigins, s.house.Registered)
	s.registerRoutes()
	return s, nil
}

func (s *Service) House() *House {
	return s.house
}

func (s *Service) Node() *node.Base {
	return s.node
}

// Run listens on cfg.ListenAddr and blocks until SIGINT/SIGTERM has been
// turned into a graceful close.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("house.Service.Run listening")
	return s.Serve(ctx, ln)
}

// Serve registers with the bank and accepts agents on ln. Cancelling ctx
// starts the house shutdown; Serve returns once the house has closed or
// cfg.ShutdownTimeout has passed.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		s.house.SetAddr(s.cfg.AdvertiseHost, tcp.Port)
	}

	bank, err := session.Dial(ctx, s.cfg.BankAddr, "house", s.cfg.Session)
	if err != nil {
		return fmt.Errorf("house: connect bank: %w", err)
	}
	s.house.SetBank(bank)

	// Connections outlive ctx so the house can say goodbye.
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		err := bank.Run(runCtx, s.house)
		if err != nil || !s.house.Closing() {
			log.Warn().Err(err).Msg("house.Serve bank connection lost")
			return ErrBankClosed
		}
		return nil
	})
	g.Go(func() error {
		return s.accept(runCtx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		g.Go(func() error {
			return node.Serve(gctx, addr, s.node)
		})
	}
	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.house.Shutdown()
			timer := time.NewTimer(s.cfg.ShutdownTimeout)
			defer timer.Stop()
			select {
			case <-s.house.Closed():
			case <-timer.C:
				log.Warn().Dur("timeout", s.cfg.ShutdownTimeout).Msg("house.Serve shutdown timed out")
			case <-gctx.Done():
			}
		case <-s.house.Closed():
		case <-gctx.Done():
		}
		_ = ln.Close()
		s.closeAllConns()
		_ = bank.Close()
		cancel()
		return nil
	})

	if err := s.house.Register(); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	return g.Wait()
}

func (s *Service) accept(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		h := session.NewHandler(conn, "house", s.cfg.Session)
		s.trackConn(h)
		go s.handleConn(ctx, h)
	}
}

func (s *Service) handleConn(ctx context.Context, h *session.Handler) {
	defer s.untrackConn(h)
	defer s.house.Forget(h)
	remote := h.RemoteAddr()
	active := s.clientCount.Add(1)
	log.Info().Str("conn", h.ID()).Str("remote", remote).Int64("active_clients", active).Msg("house.handleConn client connected")
	defer func() {
		remaining := s.clientCount.Add(-1)
		log.Info().Str("conn", h.ID()).Str("remote", remote).Int64("active_clients", remaining).Msg("house.handleConn client disconnected")
	}()

	if err := h.Run(ctx, s.house); err != nil {
		log.Warn().Err(err).Str("conn", h.ID()).Msg("house.handleConn session ended")
	}
}

func (s *Service) trackConn(h *session.Handler) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[h] = struct{}{}
}

func (s *Service) untrackConn(h *session.Handler) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, h)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	handlers := make([]*session.Handler, 0, len(s.conns))
	for h := range s.conns {
		handlers = append(handlers, h)
		delete(s.conns, h)
	}
	s.connsMu.Unlock()
	for _, h := range handlers {
		_ = h.Close()
	}
}

// Addr is the advertised host:port.
func (s *Service) Addr() string {
	return s.house.Info().Addr()
}
