package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tubelearn/tubelearn-agent/internal/acquisition"
	"github.com/tubelearn/tubelearn-agent/internal/api"
	"github.com/tubelearn/tubelearn-agent/internal/catalog"
	"github.com/tubelearn/tubelearn-agent/internal/config"
	"github.com/tubelearn/tubelearn-agent/internal/credentials"
	"github.com/tubelearn/tubelearn-agent/internal/db"
	"github.com/tubelearn/tubelearn-agent/internal/explain"
	"github.com/tubelearn/tubelearn-agent/internal/fallback"
	"github.com/tubelearn/tubelearn-agent/internal/llm"
	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/metrics"
	"github.com/tubelearn/tubelearn-agent/internal/player"
	"github.com/tubelearn/tubelearn-agent/internal/session"
	"github.com/tubelearn/tubelearn-agent/internal/transcription"
	"github.com/tubelearn/tubelearn-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.LoadEnvFiles(".env"); err != nil {
		return err
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting tubelearn agent",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())
	catalogSvc := catalog.NewService(repo, logger)

	initCtx := context.Background()
	deviceID, err := catalogSvc.EnsureDeviceID(initCtx)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := catalogSvc.EnsureAuthToken(initCtx)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║  TUBELEARN AGENT v%-59s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-47d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-64s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-64s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	m := metrics.New()
	store := credentials.NewStoreSource(repo)
	creds := credentials.Chain{credentials.NewEnvSource(), store}
	clk := clock.New()
	remote := player.NewRemote(clk)

	jobs := transcription.NewHTTPClient(transcription.Config{
		PushURL:         cfg.JobPushURL(),
		JobsURL:         cfg.JobsURL(),
		Function:        cfg.JobFunction(),
		Languages:       cfg.SubtitleLanguages(),
		PollInterval:    cfg.JobPollInterval(),
		MaxPolls:        cfg.JobMaxPolls(),
		IncludeMetadata: cfg.JobMetadata(),
		Logger:          logger,
		Metrics:         m,
	})

	language := fallback.DefaultLanguage
	if langs := cfg.SubtitleLanguages(); len(langs) > 0 {
		language = langs[0]
	}
	var fetcher fallback.Fetcher
	switch cfg.FallbackMode() {
	case config.FallbackYtdlp:
		fetcher = fallback.NewYtdlp(fallback.YtdlpConfig{
			BaseURL:  cfg.WatchBaseURL(),
			Language: language,
			WorkDir:  filepath.Join(cfg.DataDir(), "subtitles"),
			Logger:   logger,
		})
	default:
		fetcher = fallback.NewWatchPage(fallback.WatchPageConfig{
			BaseURL:  cfg.WatchBaseURL(),
			Language: language,
			Logger:   logger,
		})
	}
	logger.Info("caption fallback configured", "mode", cfg.FallbackMode(), "language", language)

	acquirer := acquisition.New(acquisition.Config{
		Jobs:        jobs,
		Fallback:    fetcher,
		Credentials: creds,
		Element:     remote,
		SourceURL: func(id string) string {
			return fallback.WatchURL(cfg.WatchBaseURL(), id)
		},
		Retries: cfg.RetryAttempts(),
		Backoff: cfg.RetryBackoff(),
		Logger:  logger,
		Metrics: m,
	})

	generator := llm.NewOpenAI(creds, llm.Config{
		BaseURL: cfg.OpenAIBaseURL(),
		Model:   cfg.OpenAIModel(),
		Logger:  logger,
	})

	cache, err := explain.NewCache(generator, explain.CacheConfig{
		Size:              cfg.CacheSize(),
		GenerationTimeout: cfg.GenerationTimeout(),
		Logger:            logger,
		Metrics:           m,
	})
	if err != nil {
		return err
	}

	sessions := session.NewManager(session.Config{
		Acquirer: acquirer,
		Cache:    cache,
		Prefetch: explain.PrefetchConfig{
			Lookahead: cfg.PrefetchLookahead(),
			Stagger:   cfg.PrefetchStagger(),
		},
		Recorder:        catalogSvc,
		Element:         remote,
		Clock:           clk,
		SampleInterval:  cfg.SampleInterval(),
		ChunkDurationMs: cfg.ChunkDuration().Milliseconds(),
		Logger:          logger,
		Metrics:         m,
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:            cfg.Port(),
		CatalogService:  catalogSvc,
		Repository:      repo,
		Credentials:     creds,
		CredentialStore: store,
		Sessions:        sessions,
		Remote:          remote,
		Cache:           cache,
		Metrics:         m,
		ChunkDurationMs: cfg.ChunkDuration().Milliseconds(),
		Version:         config.Version,
		Logger:          logger,
		StartTime:       startTime,
		DeviceID:        deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Sessions:     sessions,
			Prefetch:     sessions.Prefetcher(),
			Logger:       logger,
			OnClearCache: cache.Clear,
			OnQuit:       quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	sessions.End()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
