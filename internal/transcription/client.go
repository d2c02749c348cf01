// Package transcription talks to the remote transcription job service: it
// pushes a subtitle job, polls it to a terminal state and downloads the
// resulting json3 payload.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tubelearn/tubelearn-agent/internal/logging"
	"github.com/tubelearn/tubelearn-agent/internal/metrics"
	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

const (
	DefaultPushURL      = "https://mango.sievedata.com/v2/push"
	DefaultJobsURL      = "https://mango.sievedata.com/v2/jobs"
	DefaultFunction     = "sieve/youtube-downloader"
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 120

	maxPayloadBytes = 10_000_000
	maxErrorBody    = 4096
)

// Status is the remote job state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further polling is needed.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusCancelled
}

// Job is the status document returned by the jobs endpoint.
type Job struct {
	ID      string          `json:"id"`
	Status  Status          `json:"status"`
	Outputs json.RawMessage `json:"outputs,omitempty"`
}

// Result is a finished job's transcript.
type Result struct {
	JobID      string
	Language   string
	Transcript transcript.RawTranscript
	Metadata   *Metadata
	Polls      int
}

// Client submits a transcription job and waits for its transcript.
type Client interface {
	SubmitAndAwait(ctx context.Context, sourceURL, credential string) (*Result, error)
}

type Config struct {
	PushURL      string
	JobsURL      string
	Function     string
	Languages    []string
	PollInterval time.Duration
	MaxPolls     int
	// IncludeMetadata asks the service for video metadata alongside the
	// subtitles.
	IncludeMetadata bool
	HTTPClient      *http.Client
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// HTTPClient is the production job-service client. It holds no per-job state.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.PushURL == "" {
		cfg.PushURL = DefaultPushURL
	}
	if cfg.JobsURL == "" {
		cfg.JobsURL = DefaultJobsURL
	}
	if cfg.Function == "" {
		cfg.Function = DefaultFunction
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logging.WithComponent(logger, "transcription"),
		metrics:    cfg.Metrics,
	}
}

type pushRequest struct {
	Function string     `json:"function"`
	Inputs   pushInputs `json:"inputs"`
}

type pushInputs struct {
	URL               string   `json:"url"`
	DownloadType      string   `json:"download_type"`
	IncludeMetadata   bool     `json:"include_metadata"`
	IncludeSubtitles  bool     `json:"include_subtitles"`
	SubtitleLanguages []string `json:"subtitle_languages"`
	SubtitleFormat    string   `json:"subtitle_format"`
}

type pushResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) SubmitAndAwait(ctx context.Context, sourceURL, credential string) (*Result, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, &AuthError{Reason: "not configured"}
	}

	jobID, err := c.submit(ctx, sourceURL, credential)
	if err != nil {
		return nil, err
	}

	logger := logging.WithJobID(c.logger, jobID)
	logger.Info("transcription job created", "url", sourceURL)

	job, polls, err := c.await(ctx, jobID, credential, logger)
	if err != nil {
		return nil, err
	}

	outputsRaw := job.Outputs
	if len(outputsRaw) == 0 {
		outputsRaw, _ = json.Marshal(job)
	}
	outputs, err := NormalizeOutputs(outputsRaw)
	if err != nil {
		c.metrics.JobOutcome("error")
		return nil, &transcript.NotFoundError{VideoID: sourceURL, Reason: err.Error()}
	}

	lang, ref, ok := outputs.Pick(c.cfg.Languages)
	if !ok {
		c.metrics.JobOutcome("error")
		return nil, &transcript.NotFoundError{VideoID: sourceURL, Reason: "job returned no subtitle tracks"}
	}

	logger.Info("fetching subtitle payload", "language", lang, "shape", outputs.Shape)
	tr, err := c.fetchPayload(ctx, ref.URL)
	if err != nil {
		c.metrics.JobOutcome("error")
		return nil, err
	}

	c.metrics.JobOutcome("finished")
	logger.Info("transcription job completed",
		"polls", polls,
		"events", len(tr.Events),
	)

	return &Result{
		JobID:      jobID,
		Language:   lang,
		Transcript: tr,
		Metadata:   outputs.Metadata,
		Polls:      polls,
	}, nil
}

func (c *HTTPClient) submit(ctx context.Context, sourceURL, credential string) (string, error) {
	body, err := json.Marshal(pushRequest{
		Function: c.cfg.Function,
		Inputs: pushInputs{
			URL:               sourceURL,
			DownloadType:      "subtitles",
			IncludeMetadata:   c.cfg.IncludeMetadata,
			IncludeSubtitles:  true,
			SubtitleLanguages: c.cfg.Languages,
			SubtitleFormat:    "json3",
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PushURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, credential)

	c.metrics.JobSubmitted()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{StatusCode: resp.StatusCode, Reason: string(respBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var pr pushResponse
	if err := json.Unmarshal(respBody, &pr); err != nil || pr.ID == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: "response carried no job id"}
	}
	return pr.ID, nil
}

// await polls sequentially: one status request, then one interval wait.
func (c *HTTPClient) await(ctx context.Context, jobID, credential string, logger *slog.Logger) (*Job, int, error) {
	start := time.Now()

	for polls := 1; polls <= c.cfg.MaxPolls; polls++ {
		job, err := c.status(ctx, jobID, credential)
		if err != nil {
			c.metrics.JobOutcome("error")
			return nil, polls, err
		}

		switch job.Status {
		case StatusFinished:
			return job, polls, nil
		case StatusError, StatusCancelled:
			c.metrics.JobOutcome(string(job.Status))
			logger.Warn("transcription job failed", "status", job.Status, "polls", polls)
			return nil, polls, &JobFailedError{JobID: jobID, Status: job.Status}
		}

		logger.Debug("transcription job pending", "status", job.Status, "poll", polls)

		if polls < c.cfg.MaxPolls {
			if err := sleepContext(ctx, c.cfg.PollInterval); err != nil {
				return nil, polls, err
			}
		}
	}

	c.metrics.JobOutcome("timeout")
	return nil, c.cfg.MaxPolls, &TimeoutError{JobID: jobID, Polls: c.cfg.MaxPolls, Elapsed: time.Since(start)}
}

func (c *HTTPClient) status(ctx context.Context, jobID, credential string) (*Job, error) {
	url := strings.TrimRight(c.cfg.JobsURL, "/") + "/" + jobID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, credential)

	c.metrics.JobPolled()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &PollError{JobID: jobID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &AuthError{StatusCode: resp.StatusCode, Reason: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &PollError{JobID: jobID, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var job Job
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&job); err != nil {
		return nil, &PollError{JobID: jobID, StatusCode: resp.StatusCode, Body: "undecodable status: " + err.Error()}
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

func (c *HTTPClient) fetchPayload(ctx context.Context, url string) (transcript.RawTranscript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transcript.RawTranscript{}, &PayloadError{URL: url, Err: &decodeError{err}}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return transcript.RawTranscript{}, ctx.Err()
		}
		return transcript.RawTranscript{}, &PayloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return transcript.RawTranscript{}, &PayloadError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return transcript.RawTranscript{}, &PayloadError{URL: url, Err: err}
	}
	if len(data) > maxPayloadBytes {
		return transcript.RawTranscript{}, &PayloadError{URL: url, Err: &decodeError{fmt.Errorf("payload exceeds %d bytes", maxPayloadBytes)}}
	}

	tr, err := transcript.ParseJSON3(data)
	if err != nil {
		return transcript.RawTranscript{}, &PayloadError{URL: url, Err: &decodeError{err}}
	}
	return tr, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, credential string) {
	req.Header.Set("X-API-Key", credential)
	req.Header.Set("X-Request-Id", uuid.NewString())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
