// Package server exposes the archive over HTTP. Routes mirror the
// service's public API: starting background fetches, reading pages of a
// channel archive, and dumping whole archives.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tgarchive/internal/archive"
	"tgarchive/internal/config"
	"tgarchive/internal/database"
)

// Service is the part of the archiver the HTTP layer depends on.
type Service interface {
	FetchAsync(username string)
	ReadPosts(ctx context.Context, username string, page, perPage int) ([]database.Post, error)
	ReadAllPosts(ctx context.Context, username string) ([]database.Post, error)
	ListChannels(ctx context.Context) ([]archive.ChannelInfo, error)
}

// Pinger is the health-check view of the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the HTTP listener and its routes.
type Server struct {
	httpServer *http.Server
	cfg        config.ServerConfig
	logger     *slog.Logger
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg config.ServerConfig, svc Service, store Pinger, logger *slog.Logger) *Server {
	log := logger.With("component", "http_server")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RequestLogger(log), Recovery(log))

	h := &handlers{svc: svc, store: store, logger: log}
	router.POST("/save-all", h.saveAll)
	router.GET("/read", h.readPosts)
	router.GET("/read-all", h.readAllPosts)
	router.GET("/channels", h.listChannels)
	router.GET("/health", h.health)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: log,
	}
}

// Run starts the listener and blocks until ctx is cancelled or the
// server fails. On cancellation it shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
