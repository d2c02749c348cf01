package explain

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tubelearn/tubelearn-agent/internal/learn"
	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/metrics"
)

const (
	DefaultLookahead = 3
	DefaultStagger   = time.Second
)

type PrefetchConfig struct {
	Lookahead int
	Stagger   time.Duration
	Clock     clock.Clock
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// OnResult receives successful prefetches.
	OnResult func(chunk learn.Chunk, text string)
}

// Prefetcher warms the cache for the chunks after the viewing one. Each
// Schedule replaces the previous one.
type Prefetcher struct {
	cache     *Cache
	lookahead int
	stagger   time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onResult  func(learn.Chunk, string)
	paused    atomic.Bool

	mu     sync.Mutex
	timers []*clock.Timer
	cancel context.CancelFunc
}

func NewPrefetcher(cache *Cache, cfg PrefetchConfig) *Prefetcher {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.Stagger <= 0 {
		cfg.Stagger = DefaultStagger
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Prefetcher{
		cache:     cache,
		lookahead: cfg.Lookahead,
		stagger:   cfg.Stagger,
		clock:     cfg.Clock,
		logger:    logging.WithComponent(logger, "prefetch"),
		metrics:   cfg.Metrics,
		onResult:  cfg.OnResult,
	}
}

// Schedule stops pending prefetches and schedules the next lookahead chunks
// after viewing, the chunk at position p firing after p times the stagger.
// It returns the number of chunks scheduled.
func (p *Prefetcher) Schedule(ctx context.Context, chunks []learn.Chunk, viewing int, title string) int {
	p.Stop()
	if p.paused.Load() || viewing < 0 {
		return 0
	}

	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel = cancel

	scheduled := 0
	for pos := 1; pos <= p.lookahead; pos++ {
		idx := viewing + pos
		if idx >= len(chunks) {
			break
		}
		chunk := chunks[idx]
		if chunk.Explanation != "" {
			continue
		}
		if _, ok := p.cache.Peek(chunk.ID); ok {
			continue
		}
		req := Request{Text: chunk.Text, Title: title, PreviousContext: chunks[idx-1].Text}
		t := p.clock.AfterFunc(time.Duration(pos)*p.stagger, func() {
			p.run(runCtx, chunk, req)
		})
		p.timers = append(p.timers, t)
		scheduled++
	}
	p.metrics.PrefetchScheduled(scheduled)
	return scheduled
}

func (p *Prefetcher) run(ctx context.Context, chunk learn.Chunk, req Request) {
	if ctx.Err() != nil {
		return
	}
	text, err := p.cache.GetExplanation(ctx, chunk.ID, req)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("prefetch failed", "chunk_id", chunk.ID, "error", err)
		}
		return
	}
	if p.onResult != nil && ctx.Err() == nil {
		p.onResult(chunk, text)
	}
}

// Stop cancels pending timers and abandons running prefetches.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Prefetcher) Pause() {
	p.paused.Store(true)
	p.Stop()
	p.logger.Info("prefetch paused")
}

func (p *Prefetcher) Resume() {
	p.paused.Store(false)
	p.logger.Info("prefetch resumed")
}

func (p *Prefetcher) IsPaused() bool {
	return p.paused.Load()
}
