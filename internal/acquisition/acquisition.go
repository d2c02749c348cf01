// Package acquisition obtains a video's transcript: the remote job service
// first, with retries for transient failures, then the native caption
// fallback. It always produces a displayable result.
package acquisition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tubelearn/tubelearn-agent/internal/credentials"
	"github.com/tubelearn/tubelearn-agent/internal/fallback"
	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/metrics"
	"github.com/tubelearn/tubelearn-agent/internal/player"
	"github.com/tubelearn/tubelearn-agent/internal/transcript"
	"github.com/tubelearn/tubelearn-agent/internal/transcription"
)

type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	SourceError    Source = "error"
)

const (
	DefaultRetries = 2
	DefaultBackoff = 2 * time.Second
)

// User-facing titles and authors.
const (
	TitleUnknown        = "Unknown Title"
	TitleFallback       = "Transcript loaded (fallback)"
	AuthorFallback      = "Using YouTube's native captions"
	TitleNoCaptions     = "No captions available"
	TitleTimeout        = "Loading timed out - please try again"
	TitleCredential     = "API key issue - check settings"
	TitleGenericFailure = "Unable to load captions"
	AuthorError         = "This video may not have captions or there was a loading error"
)

type Metadata struct {
	Title    string `json:"title"`
	Duration string `json:"duration,omitempty"`
	Author   string `json:"author,omitempty"`
	Views    string `json:"views,omitempty"`
}

// Result is the tagged acquisition outcome. Transcript is nil for SourceError.
type Result struct {
	Metadata   Metadata                  `json:"metadata"`
	Transcript *transcript.RawTranscript `json:"-"`
	Source     Source                    `json:"source"`
	// Err is the job service failure when Source is not primary.
	Err error `json:"-"`
}

type Config struct {
	Jobs        transcription.Client
	Fallback    fallback.Fetcher
	Credentials credentials.Source
	// Element is paused for the duration of Acquire when it was playing.
	Element player.Element
	// SourceURL maps a video id to the URL submitted to the job service.
	SourceURL func(videoID string) string
	Retries   int
	Backoff   time.Duration
	// Timer overrides the backoff wait, for tests.
	Timer   backoff.Timer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Acquirer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Acquirer {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.SourceURL == nil {
		cfg.SourceURL = func(id string) string { return fallback.WatchURL("", id) }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Acquirer{cfg: cfg, logger: logging.WithComponent(logger, "acquisition")}
}

// Acquire never fails: every error path resolves to a SourceError result
// whose title says what went wrong.
func (a *Acquirer) Acquire(ctx context.Context, videoID string) Result {
	logger := logging.WithVideoID(a.logger, videoID)

	if el := a.cfg.Element; el != nil && !el.Paused() {
		el.Pause()
		defer el.Play()
	}

	res, primaryErr := a.primary(ctx, videoID, logger)
	if primaryErr == nil {
		a.cfg.Metrics.Acquired(string(SourcePrimary))
		return res
	}
	logger.Warn("job service failed, trying native captions", "error", primaryErr)

	if a.cfg.Fallback != nil {
		tr, err := a.cfg.Fallback.FetchBestEffort(ctx, videoID)
		if err == nil {
			a.cfg.Metrics.Acquired(string(SourceFallback))
			logger.Info("transcript loaded from fallback", "events", len(tr.Events))
			return Result{
				Metadata:   Metadata{Title: TitleFallback, Author: AuthorFallback},
				Transcript: &tr,
				Source:     SourceFallback,
				Err:        primaryErr,
			}
		}
		logger.Warn("fallback failed", "error", err)
	}

	a.cfg.Metrics.Acquired(string(SourceError))
	return Result{
		Metadata: Metadata{Title: Classify(primaryErr), Author: AuthorError},
		Source:   SourceError,
		Err:      primaryErr,
	}
}

func (a *Acquirer) primary(ctx context.Context, videoID string, logger *slog.Logger) (Result, error) {
	if a.cfg.Jobs == nil {
		return Result{}, &transcription.AuthError{Reason: "job service not configured"}
	}

	credential, err := credentials.Lookup(ctx, a.cfg.Credentials, credentials.JobServiceKey)
	if err != nil {
		logger.Warn("credential lookup failed", "error", err)
	}

	sourceURL := a.cfg.SourceURL(videoID)
	attempt := 0
	var out *transcription.Result

	op := func() error {
		attempt++
		r, err := a.cfg.Jobs.SubmitAndAwait(ctx, sourceURL, credential)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("transient job service failure, retrying",
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.cfg.Backoff), uint64(a.cfg.Retries)),
		ctx,
	)
	if err := backoff.RetryNotifyWithTimer(op, b, notify, a.cfg.Timer); err != nil {
		return Result{}, err
	}

	md := Metadata{Title: TitleUnknown}
	if m := out.Metadata; m != nil {
		md = Metadata{Title: m.Title, Duration: m.Duration, Author: m.Author, Views: m.Views}
		if md.Title == "" {
			md.Title = TitleUnknown
		}
	}
	tr := out.Transcript
	logger.Info("transcript loaded from job service", "attempts", attempt, "events", len(tr.Events))
	return Result{Metadata: md, Transcript: &tr, Source: SourcePrimary}, nil
}

// IsTransient reports whether err's kind marks it retryable. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ IsRetryable() bool }
	return errors.As(err, &r) && r.IsRetryable()
}

// Classify buckets a job service failure into a user-facing title.
func Classify(err error) string {
	var (
		authErr    *transcription.AuthError
		timeoutErr *transcription.TimeoutError
	)
	switch {
	case errors.As(err, &authErr), errors.Is(err, credentials.ErrNotFound):
		return TitleCredential
	case errors.Is(err, transcript.ErrNoCaptions):
		return TitleNoCaptions
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return TitleTimeout
	default:
		return TitleGenericFailure
	}
}
