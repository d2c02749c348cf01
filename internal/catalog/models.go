package catalog

import (
	"time"

	"github.com/google/uuid"
)

const (
	VideoStatusLoading = "loading"
	VideoStatusReady   = "ready"
	VideoStatusFailed  = "failed"

	SourcePrimary  = "primary"
	SourceFallback = "fallback"
	SourceError    = "error"
	SourcePending  = "pending"
)

// Video is one acquired (or attempted) transcript.
type Video struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Duration   string    `json:"duration,omitempty"`
	Views      string    `json:"views,omitempty"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Transcript []byte    `json:"-"`
	ChunkCount int       `json:"chunk_count"`
	FetchedAt  time.Time `json:"fetched_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Explanation is a generated chunk explanation kept for notes export.
type Explanation struct {
	VideoID     string    `json:"video_id"`
	ChunkID     int       `json:"chunk_id"`
	StartMs     int64     `json:"start_ms"`
	EndMs       int64     `json:"end_ms"`
	ChunkText   string    `json:"chunk_text"`
	Explanation string    `json:"explanation"`
	CreatedAt   time.Time `json:"created_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Config keys owned by the agent.
const (
	ConfigAuthToken        = "auth_token"
	ConfigDeviceID         = "device_id"
	ConfigCredentialPrefix = "credential."
)

func NewID() string {
	return uuid.NewString()
}
