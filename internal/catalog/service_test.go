package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tubelearn/tubelearn-agent/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

func TestService_LoadLifecycle(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()

	if err := svc.BeginLoad(ctx, "abc123"); err != nil {
		t.Fatalf("BeginLoad() error = %v", err)
	}

	v, err := svc.GetVideo(ctx, "abc123")
	if err != nil || v == nil {
		t.Fatalf("GetVideo() = %v, %v", v, err)
	}
	if v.Status != VideoStatusLoading || v.Source != SourcePending {
		t.Errorf("video after BeginLoad = %+v", v)
	}

	err = svc.CompleteLoad(ctx, LoadOutcome{
		VideoID:    "abc123",
		Title:      "Intro to Go",
		Author:     "Gopher",
		Source:     SourcePrimary,
		Transcript: []byte(`{"events":[]}`),
		ChunkCount: 4,
	})
	if err != nil {
		t.Fatalf("CompleteLoad() error = %v", err)
	}

	v, _ = svc.GetVideo(ctx, "abc123")
	if v.Status != VideoStatusReady || v.Title != "Intro to Go" || v.ChunkCount != 4 {
		t.Errorf("video after CompleteLoad = %+v", v)
	}
	if string(v.Transcript) != `{"events":[]}` {
		t.Errorf("transcript = %q", v.Transcript)
	}
}

func TestService_CompleteLoad_ErrorSource(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.BeginLoad(ctx, "vid")
	if err := svc.CompleteLoad(ctx, LoadOutcome{VideoID: "vid", Title: "No captions available", Source: SourceError}); err != nil {
		t.Fatalf("CompleteLoad() error = %v", err)
	}

	v, _ := svc.GetVideo(ctx, "vid")
	if v.Status != VideoStatusFailed || v.Error != "No captions available" {
		t.Errorf("video = %+v", v)
	}
}

func TestService_BeginLoad_KeepsPreviousTranscript(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.CompleteLoad(ctx, LoadOutcome{VideoID: "v", Title: "T", Source: SourceFallback, Transcript: []byte("{}"), ChunkCount: 1})
	if err := svc.BeginLoad(ctx, "v"); err != nil {
		t.Fatalf("BeginLoad() error = %v", err)
	}

	v, _ := svc.GetVideo(ctx, "v")
	if v.Title != "T" || string(v.Transcript) != "{}" || v.Status != VideoStatusLoading {
		t.Errorf("video = %+v", v)
	}
}

func TestService_BeginLoad_RequiresID(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	if err := NewService(repo, nil).BeginLoad(context.Background(), ""); err == nil {
		t.Error("BeginLoad(\"\") should fail")
	}
}

func TestService_Explanations(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()
	svc.CompleteLoad(ctx, LoadOutcome{VideoID: "v", Source: SourcePrimary})

	for _, id := range []int{2, 0, 1} {
		err := svc.RecordExplanation(ctx, &Explanation{
			VideoID: "v", ChunkID: id, StartMs: int64(id) * 45000, EndMs: int64(id+1) * 45000,
			ChunkText: "text", Explanation: "first",
		})
		if err != nil {
			t.Fatalf("RecordExplanation() error = %v", err)
		}
	}
	svc.RecordExplanation(ctx, &Explanation{VideoID: "v", ChunkID: 1, EndMs: 90000, Explanation: "regenerated"})

	got, err := svc.GetExplanations(ctx, "v")
	if err != nil {
		t.Fatalf("GetExplanations() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, e := range got {
		if e.ChunkID != i {
			t.Errorf("got[%d].ChunkID = %d", i, e.ChunkID)
		}
	}
	if got[1].Explanation != "regenerated" {
		t.Errorf("chunk 1 explanation = %q", got[1].Explanation)
	}
}

func TestService_GetVideos_NewestFirst(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	ctx := context.Background()
	svc.CompleteLoad(ctx, LoadOutcome{VideoID: "old", Source: SourcePrimary, Transcript: []byte("{}")})
	svc.CompleteLoad(ctx, LoadOutcome{VideoID: "new", Source: SourceFallback})

	videos, err := svc.GetVideos(ctx, 10)
	if err != nil {
		t.Fatalf("GetVideos() error = %v", err)
	}
	if len(videos) != 2 || videos[0].ID != "new" || videos[1].ID != "old" {
		t.Fatalf("videos = %+v", videos)
	}
	if videos[1].Transcript != nil {
		t.Error("list should not carry transcripts")
	}
}

func TestService_EnsureAuthToken_Stable(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.EnsureAuthToken(ctx)
	if err != nil {
		t.Fatalf("EnsureAuthToken() error = %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}
	second, _ := svc.EnsureAuthToken(ctx)
	if first != second {
		t.Error("token should persist across calls")
	}

	device, _ := svc.EnsureDeviceID(ctx)
	if len(device) != 32 || device == first {
		t.Errorf("device id = %q", device)
	}
}

func TestRepository_ConfigKeys(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	ctx := context.Background()
	repo.SetConfig(ctx, ConfigCredentialPrefix+"job_service_key", "a")
	repo.SetConfig(ctx, ConfigCredentialPrefix+"generation_key", "b")
	repo.SetConfig(ctx, ConfigAuthToken, "c")

	keys, err := repo.ListConfigKeys(ctx, ConfigCredentialPrefix)
	if err != nil {
		t.Fatalf("ListConfigKeys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "credential.generation_key" {
		t.Errorf("keys = %v", keys)
	}

	if err := repo.DeleteConfig(ctx, ConfigCredentialPrefix+"generation_key"); err != nil {
		t.Fatalf("DeleteConfig() error = %v", err)
	}
	if v, _ := repo.GetConfig(ctx, ConfigCredentialPrefix+"generation_key"); v != "" {
		t.Errorf("deleted key still = %q", v)
	}
}
