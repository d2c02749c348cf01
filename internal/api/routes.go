package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tubelearn/tubelearn-agent/internal/credentials"
	"github.com/tubelearn/tubelearn-agent/internal/export"
	"github.com/tubelearn/tubelearn-agent/internal/learn"
	"github.com/tubelearn/tubelearn-agent/internal/playback"
	"github.com/tubelearn/tubelearn-agent/internal/player"
	"github.com/tubelearn/tubelearn-agent/internal/session"
)

const maxSessionWait = 30 * time.Second

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(LoopbackGuard())
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/credentials", listCredentialsHandler(cfg))
		r.Put("/credentials/{name}", putCredentialHandler(cfg))

		r.Post("/session", startSessionHandler(cfg))
		r.Get("/session", getSessionHandler(cfg))
		r.Delete("/session", endSessionHandler(cfg))
		r.Post("/session/playback", playbackReportHandler(cfg))
		r.Post("/session/navigate", navigateHandler(cfg))
		r.Get("/session/chunks", listChunksHandler(cfg))
		r.Get("/session/chunks/{id}/explanation", explanationHandler(cfg))

		r.Get("/videos", listVideosHandler(cfg))
		r.Delete("/videos/{id}", deleteVideoHandler(cfg))
		r.Get("/videos/{id}/export", exportHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			State:       "idle",
			Credentials: map[string]bool{},
		}

		if snap, ok := cfg.Sessions.Current(); ok {
			resp.State = string(snap.State)
			resp.VideoID = snap.VideoID
			resp.Title = snap.Metadata.Title
			resp.Source = string(snap.Source)
			resp.ChunkCount = len(snap.Chunks)
			for _, c := range snap.Chunks {
				if c.Explanation != "" {
					resp.ExplainedCount++
				}
			}
		}
		if p := cfg.Sessions.Prefetcher(); p != nil {
			resp.PrefetchPaused = p.IsPaused()
		}
		if cfg.Cache != nil {
			resp.CacheEntries = cfg.Cache.Len()
		}

		for _, name := range []string{credentials.JobServiceKey, credentials.GenerationKey} {
			v, err := credentials.Lookup(r.Context(), cfg.Credentials, name)
			resp.Credentials[name] = err == nil && v != ""
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listCredentialsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stored := map[string]bool{}
		if cfg.CredentialStore != nil {
			keys, err := cfg.CredentialStore.Configured(r.Context())
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to list credentials", "INTERNAL_ERROR")
				return
			}
			for _, k := range keys {
				stored[k] = true
			}
		}

		resp := CredentialsResponse{}
		for _, name := range []string{credentials.JobServiceKey, credentials.GenerationKey} {
			v, err := credentials.Lookup(r.Context(), cfg.Credentials, name)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to read credentials", "INTERNAL_ERROR")
				return
			}
			resp.Credentials = append(resp.Credentials, CredentialResponse{
				Name:       name,
				Configured: v != "",
				Stored:     stored[name],
			})
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func putCredentialHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if !credentials.Known(name) {
			WriteError(w, http.StatusNotFound, "unknown credential", "NOT_FOUND")
			return
		}
		if cfg.CredentialStore == nil {
			WriteError(w, http.StatusServiceUnavailable, "credential store unavailable", "UNAVAILABLE")
			return
		}

		var req CredentialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.CredentialStore.Set(r.Context(), name, req.Value); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		cfg.Logger.Info("credential updated", "name", name, "cleared", req.Value == "")
		w.WriteHeader(http.StatusNoContent)
	}
}

func startSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.VideoID == "" {
			WriteError(w, http.StatusBadRequest, "video_id is required", "BAD_REQUEST")
			return
		}

		if req.Restart {
			snap := cfg.Sessions.Restart(req.VideoID)
			WriteJSON(w, http.StatusAccepted, SessionResponse{Snapshot: snap, Started: true})
			return
		}

		snap, started, err := cfg.Sessions.Ensure(req.VideoID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		status := http.StatusOK
		if started {
			status = http.StatusAccepted
		}
		WriteJSON(w, status, SessionResponse{Snapshot: snap, Started: started})
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := r.URL.Query().Get("wait"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d < 0 {
				WriteError(w, http.StatusBadRequest, "invalid wait duration", "BAD_REQUEST")
				return
			}
			if d > maxSessionWait {
				d = maxSessionWait
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			snap, err := cfg.Sessions.WaitLoaded(ctx)
			cancel()
			if err == nil {
				WriteJSON(w, http.StatusOK, SessionResponse{Snapshot: snap})
				return
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				writeSessionError(w, err)
				return
			}
		}

		snap, ok := cfg.Sessions.Current()
		if !ok {
			writeSessionError(w, session.ErrNoSession)
			return
		}
		WriteJSON(w, http.StatusOK, SessionResponse{Snapshot: snap})
	}
}

func endSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Sessions.End() {
			writeSessionError(w, session.ErrNoSession)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// playbackReportHandler records the overlay's media element state and
// answers with the commands queued for it.
func playbackReportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rep player.Report
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if rep.PositionMs < 0 {
			WriteError(w, http.StatusBadRequest, "position_ms must not be negative", "BAD_REQUEST")
			return
		}

		resp := PlaybackResponse{Commands: []player.Command{}}
		position := rep.PositionMs
		if cfg.Remote != nil {
			if cmds := cfg.Remote.Apply(rep); len(cmds) > 0 {
				resp.Commands = cmds
			}
			// Queued seeks are already applied to the remote position.
			position = cfg.Remote.CurrentTimeMs()
		}

		st, err := cfg.Sessions.Observe(position)
		switch {
		case err == nil:
			resp.Playback = &st
		case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrNotReady):
		default:
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func navigateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NavigateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var (
			st  playback.State
			err error
		)
		switch req.Action {
		case NavigateGoto:
			st, err = cfg.Sessions.Navigate(req.Index)
		case NavigateNext:
			st, err = cfg.Sessions.Step(1)
		case NavigatePrev:
			st, err = cfg.Sessions.Step(-1)
		case NavigateFollow:
			st, err = cfg.Sessions.Follow()
		case NavigateSeek:
			st, err = cfg.Sessions.Seek(req.Index)
		default:
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action), "BAD_REQUEST")
			return
		}
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, st)
	}
}

func listChunksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := cfg.Sessions.Current()
		if !ok {
			writeSessionError(w, session.ErrNoSession)
			return
		}
		resp := ChunksResponse{
			Chunks:   make([]ChunkResponse, len(snap.Chunks)),
			Playback: snap.Playback,
		}
		for i, c := range snap.Chunks {
			resp.Chunks[i] = ChunkToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func explanationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		chunk, err := cfg.Sessions.Explain(r.Context(), id)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			writeSessionError(w, err)
			return
		}
		if chunk.Explanation == "" && chunk.Error != "" {
			WriteError(w, http.StatusBadGateway, chunk.Error, "GENERATION_FAILED")
			return
		}
		WriteJSON(w, http.StatusOK, ChunkToResponse(chunk))
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "invalid limit", "BAD_REQUEST")
				return
			}
			limit = n
		}

		videos, err := cfg.CatalogService.GetVideos(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, len(videos))}
		for i, v := range videos {
			resp.Videos[i] = VideoToResponse(v)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func deleteVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.CatalogService.RemoveVideo(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		id := chi.URLParam(r, "id")
		video, err := cfg.CatalogService.GetVideo(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if video == nil {
			WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
			return
		}
		if len(video.Transcript) == 0 {
			WriteError(w, http.StatusConflict, "video has no transcript", "NO_TRANSCRIPT")
			return
		}

		explanations, err := cfg.CatalogService.GetExplanations(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		targetMs := cfg.ChunkDurationMs
		if targetMs <= 0 {
			targetMs = learn.DefaultTargetDurationMs
		}
		chunks, err := export.ChunksFromCatalog(video, explanations, targetMs)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		body := export.Render(format, video.Title, chunks)
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(video.Title, format)))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		WriteError(w, http.StatusNotFound, err.Error(), "NO_SESSION")
	case errors.Is(err, session.ErrNotReady):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_READY")
	case errors.Is(err, session.ErrUnknownChunk):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	default:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	}
}
