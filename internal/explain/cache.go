// Package explain generates per-chunk explanations with memoization,
// single-flight deduplication and lookahead prefetch.
package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/metrics"
)

const (
	DefaultCacheSize         = 1024
	DefaultGenerationTimeout = 60 * time.Second
)

// Request carries what the generator needs to explain one chunk.
type Request struct {
	Text            string
	Title           string
	PreviousContext string
}

// Generator produces explanation text. Implementations are safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// GenerationError wraps a failed generation for one chunk.
type GenerationError struct {
	ChunkID string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate explanation for %s: %v", e.ChunkID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type CacheConfig struct {
	Size              int
	GenerationTimeout time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
}

// Cache memoizes successful explanations per chunk id and runs at most one
// generation per id at a time. Failures are never stored.
type Cache struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group

	mu         sync.Mutex
	generation uint64
	memo       *lru.Cache[string, string]
}

func NewCache(gen Generator, cfg CacheConfig) (*Cache, error) {
	size := cfg.Size
	if size <= 0 {
		size = DefaultCacheSize
	}
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	memo, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create explanation cache: %w", err)
	}

	return &Cache{
		gen:     gen,
		timeout: timeout,
		logger:  logging.WithComponent(logger, "explain"),
		metrics: cfg.Metrics,
		memo:    memo,
	}, nil
}

// GetExplanation returns the memoized explanation for chunkID or generates
// it. Concurrent callers for the same id share one generation. The
// generation outlives a cancelled caller so that other waiters and the memo
// still receive it.
func (c *Cache) GetExplanation(ctx context.Context, chunkID string, req Request) (string, error) {
	c.mu.Lock()
	gen := c.generation
	if v, ok := c.memo.Get(chunkID); ok {
		c.mu.Unlock()
		c.metrics.ExplanationLookup("hit")
		return v, nil
	}
	c.mu.Unlock()

	key := strconv.FormatUint(gen, 10) + "/" + chunkID
	flightCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		if v, ok := c.memo.Get(chunkID); ok && c.generation == gen {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()

		c.metrics.ExplanationLookup("miss")

		gctx, cancel := context.WithTimeout(flightCtx, c.timeout)
		defer cancel()

		start := time.Now()
		text, err := c.gen.Generate(gctx, req)
		c.metrics.ExplanationGenerated(err == nil)
		if err != nil {
			c.logger.Warn("explanation generation failed", "chunk_id", chunkID, "error", err)
			return "", err
		}

		c.mu.Lock()
		if c.generation == gen {
			c.memo.Add(chunkID, text)
		}
		c.mu.Unlock()

		c.logger.Debug("explanation generated", "chunk_id", chunkID, "duration_ms", time.Since(start).Milliseconds())
		return text, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.ExplanationLookup("shared")
		}
		if res.Err != nil {
			return "", &GenerationError{ChunkID: chunkID, Err: res.Err}
		}
		return res.Val.(string), nil
	}
}

// Peek returns a memoized explanation without generating.
func (c *Cache) Peek(chunkID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memo.Peek(chunkID)
}

// Len is the number of memoized explanations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memo.Len()
}

// Clear drops every memoized value. Generations already in flight finish for
// their waiters but their results are not stored.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.generation++
	c.memo.Purge()
	c.mu.Unlock()
	c.logger.Debug("explanation cache cleared")
}
