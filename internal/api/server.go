package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"idle-arena/internal/battle"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig configures the observer API server
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
	RateLimit   RateLimitConfig
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for live notifications.
type Server struct {
	cfg         ServerConfig
	hub         *Hub
	rateLimiter *IPRateLimiter
	handler     http.Handler
}

// NewServer creates the API server around a hub that is usually also the
// engine's notifier. Background workers do NOT start until Run is called;
// use Router() with httptest for endpoint tests.
func NewServer(cfg ServerConfig, hub *Hub, engine BattleReader, journal FrameReader, browser battle.Browser) *Server {
	s := &Server{
		cfg:         cfg,
		hub:         hub,
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
	}
	s.handler = NewRouter(RouterConfig{
		Engine:      engine,
		Journal:     journal,
		Browser:     browser,
		Hub:         s.hub,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
	})
	return s
}

// Router returns the HTTP handler for use with httptest
func (s *Server) Router() http.Handler {
	return s.handler
}

// Run serves HTTP and runs the hub until ctx is cancelled, then shuts down
// gracefully. This is the ONLY method that starts goroutines or opens
// network listeners.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.hub.Run(gctx)
	})
	g.Go(func() error {
		log.Printf("🌐 API server starting on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.rateLimiter.Stop()
		log.Println("🌐 API server stopped")
		return err
	})
	return g.Wait()
}
