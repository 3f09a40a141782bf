package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"user-records-service/cmd/api/di"
	"user-records-service/internal/config"

	"go.uber.org/zap"
)

// Server owns the HTTP listener of the service
type Server struct {
	Config *config.Config
	Logger *zap.Logger
	Gin    *http.Server

	lis net.Listener
}

// New creates a new server instance
func New(cfg *config.Config, l *zap.Logger, c *di.Container) *Server {
	return &Server{
		Config: cfg,
		Logger: l,
		Gin: SetupGinServer(
			c.GinHandler,
			c.RateLimiter,
			cfg.Logger.ServiceName,
			httpAddress(cfg),
			l,
		),
	}
}

// Listen binds the configured address.
func (s *Server) Listen(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.Gin.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Gin.Addr, err)
	}
	s.lis = lis
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Serve handles requests on the bound listener until Shutdown. A clean
// shutdown returns nil.
func (s *Server) Serve() error {
	if s.lis == nil {
		return errors.New("server is not listening")
	}

	s.Logger.Info("REST API running", zap.String("address", s.Addr()))

	if err := s.Gin.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured port and serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Gin.Shutdown(ctx)
}

// httpAddress returns the HTTP server address
func httpAddress(cfg *config.Config) string {
	return ":" + cfg.App.HTTPPort
}
