// Package api serves the overlay's localhost HTTP API.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tubelearn/tubelearn-agent/internal/catalog"
	"github.com/tubelearn/tubelearn-agent/internal/credentials"
	"github.com/tubelearn/tubelearn-agent/internal/explain"
	"github.com/tubelearn/tubelearn-agent/internal/learn"
	"github.com/tubelearn/tubelearn-agent/internal/metrics"
	"github.com/tubelearn/tubelearn-agent/internal/playback"
	"github.com/tubelearn/tubelearn-agent/internal/player"
	"github.com/tubelearn/tubelearn-agent/internal/session"
)

// SessionService is the session surface the API drives.
type SessionService interface {
	Ensure(videoID string) (session.Snapshot, bool, error)
	Restart(videoID string) session.Snapshot
	Current() (session.Snapshot, bool)
	WaitLoaded(ctx context.Context) (session.Snapshot, error)
	End() bool
	Observe(tMs int64) (playback.State, error)
	Navigate(index int) (playback.State, error)
	Step(delta int) (playback.State, error)
	Follow() (playback.State, error)
	Seek(index int) (playback.State, error)
	Explain(ctx context.Context, chunkID string) (learn.Chunk, error)
	Prefetcher() *explain.Prefetcher
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port            int
	CatalogService  catalog.CatalogService
	Repository      catalog.Repository
	Credentials     credentials.Source
	CredentialStore *credentials.StoreSource
	Sessions        SessionService
	Remote          *player.Remote
	Cache           *explain.Cache
	Metrics         *metrics.Metrics
	ChunkDurationMs int64
	Version         string
	Logger          *slog.Logger
	StartTime       time.Time
	DeviceID        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Explanations can take as long as a generation.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
