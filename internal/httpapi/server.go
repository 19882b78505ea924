// Package httpapi exposes the streamer's state over a local HTTP server:
// health and status for operators, store slices for sidecar consumers.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/dispatch"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/realtime"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/store"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/subscription"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/version"
)

// Server serves the status API.
type Server struct {
	addr    string
	router  *gin.Engine
	manager *realtime.Manager
	subs    *subscription.Registry
	disp    *dispatch.Dispatcher
	store   *store.Store
}

// Config wires the server to the streamer's components.
type Config struct {
	Port    int
	Manager *realtime.Manager
	Subs    *subscription.Registry
	Disp    *dispatch.Dispatcher
	Store   *store.Store
}

// NewServer builds the router. It does not listen until Start.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil || cfg.Subs == nil || cfg.Disp == nil || cfg.Store == nil {
		return nil, errors.New("all components are required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    fmt.Sprintf(":%d", cfg.Port),
		router:  router,
		manager: cfg.Manager,
		subs:    cfg.Subs,
		disp:    cfg.Disp,
		store:   cfg.Store,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/quotes", s.handleQuotes)
	api.GET("/quotes/:symbol", s.handleQuote)
	api.GET("/orders", s.handleOrders)
	api.GET("/positions", s.handlePositions)
	api.GET("/portfolio", s.handlePortfolio)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"realtime":      s.manager.Stats(),
		"connection":    s.store.Connection(),
		"subscriptions": s.subs.Counts(),
		"dispatcher":    s.disp.Stats(),
		"mode":          s.store.Mode(),
		"messages":      s.store.MessageCount(),
	})
}

func (s *Server) handleQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quotes": s.store.Quotes()})
}

func (s *Server) handleQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	q, ok := s.store.Quote(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote for symbol " + symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": q})
}

func (s *Server) handleOrders(c *gin.Context) {
	mode, ok := s.modeParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": s.store.Orders(mode), "mode": mode})
}

func (s *Server) handlePositions(c *gin.Context) {
	mode, ok := s.modeParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": s.store.Positions(mode), "mode": mode})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	mode, ok := s.modeParam(c)
	if !ok {
		return
	}
	p, found := s.store.Portfolio(mode)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no portfolio snapshot for mode " + string(mode)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolio": p, "mode": mode})
}

// modeParam resolves the mode query parameter, defaulting to the store's
// active mode. On an invalid value it writes the error response itself.
func (s *Server) modeParam(c *gin.Context) (protocol.Mode, bool) {
	switch raw := c.Query("mode"); raw {
	case "":
		return s.store.Mode(), true
	case "paper":
		return protocol.ModePaper, true
	case "live":
		return protocol.ModeLive, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be paper or live, got " + raw})
		return "", false
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
