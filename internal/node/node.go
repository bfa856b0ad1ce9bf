package node

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/auctionctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Node is a process (bank, house, agent) exposing an admin HTTP surface.
type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
}

// Base carries the router and the routes every node shares.
type Base struct {
	id       string
	kind     string
	appeared time.Time
	router   *gin.Engine
	ready    func() bool
}

var _ Node = (*Base)(nil)

// NewBase builds a gin engine with recovery, request logging, request
// metrics and CORS, and registers /health, /ready and /metrics.
func NewBase(kind, id string, corsOrigins []string, ready func() bool) *Base {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.NewLogger(kind + ".admin")))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(corsConfig(corsOrigins)))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	if ready == nil {
		ready = func() bool { return true }
	}
	b := &Base{
		id:       id,
		kind:     kind,
		appeared: time.Now(),
		router:   r,
		ready:    ready,
	}
	b.registerRoutes()
	return b
}

func (b *Base) NodeID() string {
	return b.id
}

func (b *Base) Kind() string {
	return b.kind
}

func (b *Base) HTTPRouter() *gin.Engine {
	return b.router
}

func (b *Base) registerRoutes() {
	b.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(b.appeared).String(),
			"node":   b.id,
			"kind":   b.kind,
		})
	})
	b.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !b.ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  status == http.StatusOK,
			"uptime": time.Since(b.appeared).String(),
			"node":   b.id,
		})
	})
	b.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Serve runs the node's admin router on addr until ctx is done.
func Serve(ctx context.Context, addr string, n Node) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           n.HTTPRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("node", n.NodeID()).Msg("node.Serve admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
