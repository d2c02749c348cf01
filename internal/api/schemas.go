package api

import (
	"time"

	"github.com/tubelearn/tubelearn-agent/internal/catalog"
	"github.com/tubelearn/tubelearn-agent/internal/learn"
	"github.com/tubelearn/tubelearn-agent/internal/playback"
	"github.com/tubelearn/tubelearn-agent/internal/player"
	"github.com/tubelearn/tubelearn-agent/internal/session"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State          string          `json:"state"`
	VideoID        string          `json:"video_id,omitempty"`
	Title          string          `json:"title,omitempty"`
	Source         string          `json:"source,omitempty"`
	ChunkCount     int             `json:"chunk_count"`
	ExplainedCount int             `json:"explained_count"`
	PrefetchPaused bool            `json:"prefetch_paused"`
	CacheEntries   int             `json:"cache_entries"`
	Credentials    map[string]bool `json:"credentials"`
}

type CredentialRequest struct {
	Value string `json:"value"`
}

type CredentialResponse struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	// Stored is false when the value comes from the environment.
	Stored bool `json:"stored"`
}

type CredentialsResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
}

type StartSessionRequest struct {
	VideoID string `json:"video_id"`
	// Restart reloads the video even when its session is live.
	Restart bool `json:"restart,omitempty"`
}

type SessionResponse struct {
	session.Snapshot
	Started bool `json:"started,omitempty"`
}

type PlaybackResponse struct {
	Commands []player.Command `json:"commands"`
	Playback *playback.State  `json:"playback,omitempty"`
}

const (
	NavigateGoto   = "goto"
	NavigateNext   = "next"
	NavigatePrev   = "prev"
	NavigateFollow = "follow"
	NavigateSeek   = "seek"
)

type NavigateRequest struct {
	Action string `json:"action"`
	Index  int    `json:"index,omitempty"`
}

type ChunksResponse struct {
	Chunks   []ChunkResponse `json:"chunks"`
	Playback playback.State  `json:"playback"`
}

type ChunkResponse struct {
	learn.Chunk
	Label string `json:"label"`
}

type VideoResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Source     string `json:"source"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	FetchedAt  string `json:"fetched_at,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ChunkToResponse(c learn.Chunk) ChunkResponse {
	return ChunkResponse{Chunk: c, Label: learn.FormatChunkTime(c)}
}

func VideoToResponse(v *catalog.Video) VideoResponse {
	resp := VideoResponse{
		ID:         v.ID,
		Title:      v.Title,
		Author:     v.Author,
		Duration:   v.Duration,
		Source:     v.Source,
		Status:     v.Status,
		Error:      v.Error,
		ChunkCount: v.ChunkCount,
		UpdatedAt:  v.UpdatedAt.Format(time.RFC3339),
	}
	if !v.FetchedAt.IsZero() {
		resp.FetchedAt = v.FetchedAt.Format(time.RFC3339)
	}
	return resp
}
