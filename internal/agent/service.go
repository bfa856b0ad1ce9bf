package agent

import (
	"context"
	"errors"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/auctionctl/internal/node"
	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/danmuck/auctionctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ServiceConfig configures the agent process.
type ServiceConfig struct {
	Name            string
	BankAddr        string
	InitialBalance  decimal.Decimal
	AdminListenAddr string
	CORSOrigins     []string
	AutoBid         bool
	AutoBidInterval time.Duration
	ShutdownTimeout time.Duration
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BankAddr:        "127.0.0.1:4444",
		InitialBalance:  decimal.NewFromInt(1000),
		AutoBidInterval: 5 * time.Second,
		ShutdownTimeout: 2 * time.Minute,
		Session:         session.DefaultConfig(),
	}
}

// Service runs one agent with its optional auto-bidder and admin surface.
type Service struct {
	cfg   ServiceConfig
	agent *Agent
	node  *node.Base
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.BankAddr) == "" {
		cfg.BankAddr = def.BankAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	a := New(Config{
		Name:           cfg.Name,
		InitialBalance: cfg.InitialBalance,
		BankAddr:       cfg.BankAddr,
		Session:        cfg.Session,
	}, NewLogNotifier(observability.NewLogger("agent")))
	s := &Service{cfg: cfg, agent: a}
	s.node = node.NewBase("agent", a.Name(), cfg.CORSOrigins, func() bool { return a.Account() != 0 })
	s.registerRoutes()
	return s
}

func (s *Service) Agent() *Agent {
	return s.agent
}

func (s *Service) Node() *node.Base {
	return s.node
}

// Run blocks until SIGINT/SIGTERM or until the bank goes away.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve starts the agent and keeps it running until ctx is done, then
// leaves as soon as it no longer leads any item.
func (s *Service) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.agent.Start(runCtx); err != nil {
		return err
	}
	log.Info().Str("agent", s.agent.Name()).Int("account", s.agent.Account()).Msg("agent.Service.Serve registered")

	g, gctx := errgroup.WithContext(runCtx)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		g.Go(func() error {
			return node.Serve(gctx, addr, s.node)
		})
	}
	if s.cfg.AutoBid {
		bidder := NewAutoBidder(s.agent, s.cfg.AutoBidInterval, rand.New(rand.NewSource(time.Now().UnixNano())))
		g.Go(func() error {
			return bidder.Run(ctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		select {
		case <-ctx.Done():
			return s.leave(gctx)
		case <-s.agent.Done():
			log.Warn().Str("agent", s.agent.Name()).Msg("agent.Service.Serve bank connection lost")
			s.agent.Close()
			return nil
		case <-gctx.Done():
			s.agent.Close()
			return nil
		}
	})
	return g.Wait()
}

func (s *Service) leave(ctx context.Context) error {
	deadline := time.NewTimer(s.cfg.ShutdownTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		err := s.agent.TryDisconnect(ctx)
		if err == nil || !errors.Is(err, ErrLeadingBids) {
			return nil
		}
		log.Info().Err(err).Msg("agent.Service.leave waiting on bids")
		select {
		case <-tick.C:
		case <-deadline.C:
			log.Warn().Dur("timeout", s.cfg.ShutdownTimeout).Msg("agent.Service.leave timed out")
			s.agent.Close()
			return nil
		case <-ctx.Done():
			s.agent.Close()
			return nil
		}
	}
}
