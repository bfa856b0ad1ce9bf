package bank

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/danmuck/auctionctl/internal/node"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ServiceConfig configures the bank process.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	CORSOrigins     []string
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      ":4444",
		AdminListenAddr: "",
		Session:         session.DefaultConfig(),
	}
}

// Service runs the bank's accept loop and optional admin surface.
type Service struct {
	cfg  ServiceConfig
	bank *Bank
	node *node.Base

	listening atomic.Bool

	connsMu sync.Mutex
	conns   map[*session.Handler]struct{}

	clientCount atomic.Int64
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	s := &Service{
		cfg:   cfg,
		bank:  New(NewLedger()),
		conns: make(map[*session.Handler]struct{}),
	}
	s.node = node.NewBase("bank", "bank", cfg.CORSOrigins, s.listening.Load)
	s.registerRoutes()
	return s
}

func (s *Service) Bank() *Bank {
	return s.bank
}

func (s *Service) Node() *node.Base {
	return s.node
}

// Run listens on cfg.ListenAddr and blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("bank.Service.Run listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(ctx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		g.Go(func() error {
			return node.Serve(ctx, addr, s.node)
		})
	}
	return g.Wait()
}

// Serve accepts connections on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.listening.Store(true)
	defer s.listening.Store(false)
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		h := session.NewHandler(conn, "bank", s.cfg.Session)
		s.trackConn(h)
		go s.handleConn(ctx, h)
	}
}

func (s *Service) handleConn(ctx context.Context, h *session.Handler) {
	defer s.untrackConn(h)
	defer s.bank.Forget(h)
	remote := h.RemoteAddr()
	active := s.clientCount.Add(1)
	log.Info().Str("conn", h.ID()).Str("remote", remote).Int64("active_clients", active).Msg("bank.handleConn client connected")
	defer func() {
		remaining := s.clientCount.Add(-1)
		log.Info().Str("conn", h.ID()).Str("remote", remote).Int64("active_clients", remaining).Msg("bank.handleConn client disconnected")
	}()

	if err := h.Run(ctx, s.bank); err != nil {
		log.Warn().Err(err).Str("conn", h.ID()).Msg("bank.handleConn session ended")
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
