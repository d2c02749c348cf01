package catalog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

type CatalogService interface {
	BeginLoad(ctx context.Context, videoID string) error
	CompleteLoad(ctx context.Context, outcome LoadOutcome) error
	RecordExplanation(ctx context.Context, e *Explanation) error
	GetVideos(ctx context.Context, limit int) ([]*Video, error)
	GetVideo(ctx context.Context, id string) (*Video, error)
	GetExplanations(ctx context.Context, videoID string) ([]*Explanation, error)
	RemoveVideo(ctx context.Context, id string) error
}

// LoadOutcome is the catalog view of one finished acquisition.
type LoadOutcome struct {
	VideoID    string
	Title      string
	Author     string
	Duration   string
	Views      string
	Source     string
	Transcript []byte
	ChunkCount int
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// BeginLoad records that a transcript load for videoID is in progress.
// Earlier metadata and transcript are kept until the load completes.
func (s *Service) BeginLoad(ctx context.Context, videoID string) error {
	if videoID == "" {
		return fmt.Errorf("video id is required")
	}

	existing, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}

	now := s.now()
	v := &Video{ID: videoID, Source: SourcePending, FetchedAt: now}
	if existing != nil {
		v = existing
	}
	v.Status = VideoStatusLoading
	v.Error = ""
	v.UpdatedAt = now

	if err := s.repo.UpsertVideo(ctx, v); err != nil {
		return fmt.Errorf("record load start: %w", err)
	}
	return nil
}

// CompleteLoad stores the acquisition outcome. An error source marks the
// video failed with the user-facing title as the error text.
func (s *Service) CompleteLoad(ctx context.Context, o LoadOutcome) error {
	now := s.now()
	v := &Video{
		ID:         o.VideoID,
		Title:      o.Title,
		Author:     o.Author,
		Duration:   o.Duration,
		Views:      o.Views,
		Source:     o.Source,
		Status:     VideoStatusReady,
		Transcript: o.Transcript,
		ChunkCount: o.ChunkCount,
		FetchedAt:  now,
		UpdatedAt:  now,
	}
	if o.Source == SourceError {
		v.Status = VideoStatusFailed
		v.Error = o.Title
	}

	if err := s.repo.UpsertVideo(ctx, v); err != nil {
		return fmt.Errorf("record load outcome: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("transcript load recorded",
			"video_id", o.VideoID,
			"source", o.Source,
			"chunks", o.ChunkCount,
		)
	}
	return nil
}

func (s *Service) RecordExplanation(ctx context.Context, e *Explanation) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.repo.UpsertExplanation(ctx, e); err != nil {
		return fmt.Errorf("record explanation: %w", err)
	}
	return nil
}

func (s *Service) GetVideos(ctx context.Context, limit int) ([]*Video, error) {
	return s.repo.ListVideos(ctx, limit)
}

func (s *Service) GetVideo(ctx context.Context, id string) (*Video, error) {
	return s.repo.GetVideo(ctx, id)
}

func (s *Service) GetExplanations(ctx context.Context, videoID string) ([]*Explanation, error) {
	return s.repo.ListExplanations(ctx, videoID)
}

func (s *Service) RemoveVideo(ctx context.Context, id string) error {
	return s.repo.DeleteVideo(ctx, id)
}

// EnsureDeviceID returns the persisted device id, creating one on first run.
func (s *Service) EnsureDeviceID(ctx context.Context) (string, error) {
	return s.ensureSecret(ctx, ConfigDeviceID, 16)
}

// EnsureAuthToken returns the persisted API bearer token, creating one on
// first run.
func (s *Service) EnsureAuthToken(ctx context.Context) (string, error) {
	return s.ensureSecret(ctx, ConfigAuthToken, 32)
}

func (s *Service) ensureSecret(ctx context.Context, key string, size int) (string, error) {
	existing, err := s.repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)

	if err := s.repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
