// Package session owns the lifecycle of the video currently being watched:
// transcript loading, chunking, the playback sampler, navigation and
// explanation outcomes. Starting a session ends the previous one.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/tubelearn/tubelearn-agent/internal/acquisition"
	"github.com/tubelearn/tubelearn-agent/internal/catalog"
	"github.com/tubelearn/tubelearn-agent/internal/explain"
	"github.com/tubelearn/tubelearn-agent/internal/learn"
	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/metrics"
	"github.com/tubelearn/tubelearn-agent/internal/playback"
	"github.com/tubelearn/tubelearn-agent/internal/player"
	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

const DefaultSampleInterval = 500 * time.Millisecond

// ChunkErrorMessage is shown on a chunk whose explanation failed.
const ChunkErrorMessage = "Failed to generate explanation"

var (
	ErrNoSession    = errors.New("no active session")
	ErrNotReady     = errors.New("session transcript is not ready")
	ErrUnknownChunk = errors.New("unknown chunk")
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Acquirer loads a transcript for a video id.
type Acquirer interface {
	Acquire(ctx context.Context, videoID string) acquisition.Result
}

// Recorder persists load and explanation outcomes.
type Recorder interface {
	BeginLoad(ctx context.Context, videoID string) error
	CompleteLoad(ctx context.Context, outcome catalog.LoadOutcome) error
	RecordExplanation(ctx context.Context, e *catalog.Explanation) error
}

type Config struct {
	Acquirer        Acquirer
	Cache           *explain.Cache
	Prefetch        explain.PrefetchConfig
	Recorder        Recorder
	Element         player.Element
	Clock           clock.Clock
	SampleInterval  time.Duration
	ChunkDurationMs int64
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Snapshot is a copy of session state safe to hand to callers.
type Snapshot struct {
	ID        string               `json:"id"`
	VideoID   string               `json:"video_id"`
	State     State                `json:"state"`
	Source    acquisition.Source   `json:"source,omitempty"`
	Metadata  acquisition.Metadata `json:"metadata"`
	Chunks    []learn.Chunk        `json:"chunks"`
	Playback  playback.State       `json:"playback"`
	StartedAt time.Time            `json:"started_at"`
}

type session struct {
	id        string
	videoID   string
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	loaded    chan struct{}
	logger    *slog.Logger

	mu       sync.RWMutex
	state    State
	source   acquisition.Source
	metadata acquisition.Metadata
	chunks   []learn.Chunk
	tracker  *playback.Tracker
}

func (s *session) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:        s.id,
		VideoID:   s.videoID,
		State:     s.state,
		Source:    s.source,
		Metadata:  s.metadata,
		Chunks:    append([]learn.Chunk{}, s.chunks...),
		StartedAt: s.startedAt,
		Playback:  playback.State{Active: -1, Viewing: -1, Following: true},
	}
	if s.tracker != nil {
		snap.Playback = s.tracker.State()
	}
	return snap
}

// Manager holds at most one live session.
type Manager struct {
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	prefetch *explain.Prefetcher

	mu      sync.Mutex
	current *session
}

func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.ChunkDurationMs <= 0 {
		cfg.ChunkDurationMs = learn.DefaultTargetDurationMs
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	m := &Manager{
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  logging.WithComponent(logger, "session"),
		metrics: cfg.Metrics,
	}

	pcfg := cfg.Prefetch
	if pcfg.Clock == nil {
		pcfg.Clock = cfg.Clock
	}
	if pcfg.Logger == nil {
		pcfg.Logger = logger
	}
	if pcfg.Metrics == nil {
		pcfg.Metrics = cfg.Metrics
	}
	pcfg.OnResult = m.onPrefetched
	m.prefetch = explain.NewPrefetcher(cfg.Cache, pcfg)
	return m
}

// Prefetcher exposes the prefetch controls (pause/resume).
func (m *Manager) Prefetcher() *explain.Prefetcher {
	return m.prefetch
}

// Ensure starts a session for videoID unless one for the same video is
// already live. It reports whether a new session was started.
func (m *Manager) Ensure(videoID string) (Snapshot, bool, error) {
	if videoID == "" {
		return Snapshot{}, false, fmt.Errorf("video id is required")
	}

	m.mu.Lock()
	if cur := m.current; cur != nil && cur.videoID == videoID {
		m.mu.Unlock()
		return cur.snapshot(), false, nil
	}
	m.mu.Unlock()

	return m.Restart(videoID), true, nil
}

// Restart ends any live session and loads videoID from scratch.
func (m *Manager) Restart(videoID string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        uuid.NewString(),
		videoID:   videoID,
		startedAt: m.clock.Now(),
		ctx:       ctx,
		cancel:    cancel,
		loaded:    make(chan struct{}),
		logger:    logging.WithVideoID(m.logger, videoID),
		state:     StateLoading,
	}
	m.current = s
	m.metrics.SessionStarted()
	s.logger.Info("session started", "session_id", s.id)

	go m.load(s)
	return s.snapshot()
}

// End stops the live session, if any.
func (m *Manager) End() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endLocked()
}

func (m *Manager) endLocked() bool {
	s := m.current
	if s == nil {
		return false
	}
	s.cancel()
	m.prefetch.Stop()
	if m.cfg.Cache != nil {
		m.cfg.Cache.Clear()
	}
	m.current = nil
	s.logger.Info("session ended", "session_id", s.id)
	return true
}

// Current returns the live session's snapshot.
func (m *Manager) Current() (Snapshot, bool) {
	s := m.live()
	if s == nil {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// WaitLoaded blocks until the live session has finished loading.
func (m *Manager) WaitLoaded(ctx context.Context) (Snapshot, error) {
	s := m.live()
	if s == nil {
		return Snapshot{}, ErrNoSession
	}
	select {
	case <-s.loaded:
		return s.snapshot(), nil
	case <-s.ctx.Done():
		return Snapshot{}, ErrNoSession
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (m *Manager) live() *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) isLive(s *session) bool {
	return s.ctx.Err() == nil && m.live() == s
}

func (m *Manager) load(s *session) {
	defer close(s.loaded)

	if m.cfg.Recorder != nil {
		if err := m.cfg.Recorder.BeginLoad(s.ctx, s.videoID); err != nil {
			s.logger.Warn("failed to record load start", "error", err)
		}
	}

	res := m.cfg.Acquirer.Acquire(s.ctx, s.videoID)
	if !m.isLive(s) {
		s.logger.Debug("discarding acquisition for superseded session")
		return
	}

	var chunks []learn.Chunk
	state := StateFailed
	if res.Transcript != nil {
		chunks = learn.BuildChunks(*res.Transcript, m.cfg.ChunkDurationMs)
		state = StateReady
	}

	s.mu.Lock()
	s.state = state
	s.source = res.Source
	s.metadata = res.Metadata
	s.chunks = chunks
	s.tracker = playback.NewTracker(append([]learn.Chunk{}, chunks...))
	s.mu.Unlock()

	s.logger.Info("session loaded",
		"state", state,
		"source", res.Source,
		"chunks", len(chunks),
	)
	m.recordLoad(s, res, len(chunks))

	if state != StateReady || len(chunks) == 0 {
		return
	}

	if !m.sample(s) {
		// The tracker already views chunk 0, so the first sample reports no
		// change unless playback starts past it.
		m.viewingChanged(s, s.tracker.State().Viewing)
	}
	go m.runSampler(s)
}

func (m *Manager) recordLoad(s *session, res acquisition.Result, chunkCount int) {
	if m.cfg.Recorder == nil {
		return
	}
	var raw []byte
	if res.Transcript != nil {
		b, err := transcript.MarshalJSON3(*res.Transcript)
		if err != nil {
			s.logger.Warn("failed to encode transcript", "error", err)
		}
		raw = b
	}
	err := m.cfg.Recorder.CompleteLoad(s.ctx, catalog.LoadOutcome{
		VideoID:    s.videoID,
		Title:      res.Metadata.Title,
		Author:     res.Metadata.Author,
		Duration:   res.Metadata.Duration,
		Views:      res.Metadata.Views,
		Source:     string(res.Source),
		Transcript: raw,
		ChunkCount: chunkCount,
	})
	if err != nil {
		s.logger.Warn("failed to record load outcome", "error", err)
	}
}

// runSampler re-evaluates the playback position on every tick until the
// session ends.
func (m *Manager) runSampler(s *session) {
	ticker := m.clock.Ticker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			m.sample(s)
		}
	}
}

// sample observes the element position and reports whether the viewing
// chunk moved.
func (m *Manager) sample(s *session) bool {
	if m.cfg.Element == nil {
		return false
	}
	return m.observe(s, m.cfg.Element.CurrentTimeMs())
}

func (m *Manager) observe(s *session, tMs int64) bool {
	s.mu.RLock()
	tracker := s.tracker
	s.mu.RUnlock()
	if tracker == nil {
		return false
	}
	ch := tracker.Update(tMs)
	if ch.ViewingChanged {
		m.viewingChanged(s, ch.Viewing)
	}
	return ch.ViewingChanged
}

// Observe applies an explicit position report, such as a seek.
func (m *Manager) Observe(tMs int64) (playback.State, error) {
	s, err := m.ready()
	if err != nil {
		return playback.State{}, err
	}
	m.observe(s, tMs)
	return s.tracker.State(), nil
}

func (m *Manager) ready() (*session, error) {
	s := m.live()
	if s == nil {
		return nil, ErrNoSession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady || s.tracker == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Navigate moves the viewing chunk to index.
func (m *Manager) Navigate(index int) (playback.State, error) {
	s, err := m.ready()
	if err != nil {
		return playback.State{}, err
	}
	ch, err := s.tracker.Navigate(index)
	if err != nil {
		return playback.State{}, err
	}
	if ch.ViewingChanged {
		m.viewingChanged(s, ch.Viewing)
	}
	return ch.State, nil
}

// Step moves the viewing chunk by delta, clamped to the chunk range.
func (m *Manager) Step(delta int) (playback.State, error) {
	s, err := m.ready()
	if err != nil {
		return playback.State{}, err
	}
	ch, err := s.tracker.Step(delta)
	if err != nil {
		return playback.State{}, err
	}
	if ch.ViewingChanged {
		m.viewingChanged(s, ch.Viewing)
	}
	return ch.State, nil
}

// Follow snaps the viewing chunk back to the active one.
func (m *Manager) Follow() (playback.State, error) {
	s, err := m.ready()
	if err != nil {
		return playback.State{}, err
	}
	ch := s.tracker.Follow()
	if ch.ViewingChanged {
		m.viewingChanged(s, ch.Viewing)
	}
	return ch.State, nil
}

// Seek moves the media element to the start of chunk index and follows it.
func (m *Manager) Seek(index int) (playback.State, error) {
	s, err := m.ready()
	if err != nil {
		return playback.State{}, err
	}
	s.mu.RLock()
	if index < 0 || index >= len(s.chunks) {
		s.mu.RUnlock()
		return playback.State{}, fmt.Errorf("%w: index %d", ErrUnknownChunk, index)
	}
	start := s.chunks[index].StartTimeMs
	s.mu.RUnlock()

	if m.cfg.Element != nil {
		m.cfg.Element.SetCurrentTime(start)
	}
	first := s.tracker.Update(start)
	second := s.tracker.Follow()
	if first.ViewingChanged || second.ViewingChanged {
		m.viewingChanged(s, second.Viewing)
	}
	return second.State, nil
}

// Explain returns the explanation for chunkID, generating it if needed,
// and records the outcome on the chunk.
func (m *Manager) Explain(ctx context.Context, chunkID string) (learn.Chunk, error) {
	s, err := m.ready()
	if err != nil {
		return learn.Chunk{}, err
	}
	idx, req, ok := s.request(chunkID)
	if !ok {
		return learn.Chunk{}, fmt.Errorf("%w: %s", ErrUnknownChunk, chunkID)
	}
	m.explain(ctx, s, idx, req)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[idx], nil
}

func (s *session) request(chunkID string) (int, explain.Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, c := range s.chunks {
		if c.ID != chunkID {
			continue
		}
		req := explain.Request{Text: c.Text, Title: s.metadata.Title}
		if i > 0 {
			req.PreviousContext = s.chunks[i-1].Text
		}
		return i, req, true
	}
	return -1, explain.Request{}, false
}

func (m *Manager) explain(ctx context.Context, s *session, idx int, req explain.Request) {
	s.mu.RLock()
	chunk := s.chunks[idx]
	s.mu.RUnlock()
	if chunk.Explanation != "" {
		return
	}

	text, err := m.cfg.Cache.GetExplanation(ctx, chunk.ID, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WithChunkID(s.logger, idx).Warn("explanation failed", "error", err)
	}
	m.record(s, chunk, text, err)
}

// record stores an outcome on the matching chunk of s. Outcomes for a
// session that has ended, or for text that no longer matches, are dropped.
func (m *Manager) record(s *session, chunk learn.Chunk, text string, genErr error) {
	if !m.isLive(s) {
		return
	}

	s.mu.Lock()
	if chunk.Index < 0 || chunk.Index >= len(s.chunks) {
		s.mu.Unlock()
		return
	}
	c := &s.chunks[chunk.Index]
	if c.ID != chunk.ID || c.Text != chunk.Text || c.Explanation != "" {
		s.mu.Unlock()
		return
	}
	if genErr != nil {
		c.Error = ChunkErrorMessage
		s.mu.Unlock()
		return
	}
	c.Explanation = text
	c.Error = ""
	stored := *c
	s.mu.Unlock()

	if m.cfg.Recorder == nil {
		return
	}
	err := m.cfg.Recorder.RecordExplanation(s.ctx, &catalog.Explanation{
		VideoID:     s.videoID,
		ChunkID:     stored.Index,
		StartMs:     stored.StartTimeMs,
		EndMs:       stored.EndTimeMs,
		ChunkText:   stored.Text,
		Explanation: stored.Explanation,
	})
	if err != nil && s.ctx.Err() == nil {
		s.logger.Warn("failed to record explanation", "chunk_id", stored.ID, "error", err)
	}
}

func (m *Manager) onPrefetched(chunk learn.Chunk, text string) {
	s := m.live()
	if s == nil {
		return
	}
	m.record(s, chunk, text, nil)
}

// viewingChanged explains the newly viewed chunk in the foreground and
// schedules prefetch of the chunks after it.
func (m *Manager) viewingChanged(s *session, viewing int) {
	if viewing < 0 || !m.isLive(s) {
		return
	}

	s.mu.RLock()
	chunks := append([]learn.Chunk{}, s.chunks...)
	title := s.metadata.Title
	s.mu.RUnlock()
	if viewing >= len(chunks) {
		return
	}

	s.logger.Debug("viewing changed", "chunk_id", chunks[viewing].ID)

	if chunks[viewing].Explanation == "" {
		_, req, _ := s.request(chunks[viewing].ID)
		go m.explain(s.ctx, s, viewing, req)
	}
	m.prefetch.Schedule(s.ctx, chunks, viewing, title)
}
