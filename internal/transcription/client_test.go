package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tubelearn/tubelearn-agent/internal/transcript"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const subtitleJSON3 = `{"events":[{"tStartMs":0,"dDurationMs":2000,"segs":[{"utf8":"hello"},{"utf8":" there","tOffsetMs":500}]}]}`

// fakeJobService emulates push, status and subtitle endpoints.
type fakeJobService struct {
	t        *testing.T
	statuses []Status
	outputs  func(baseURL string) string

	pushStatus int
	pushCalls  atomic.Int32
	pollCalls  atomic.Int32

	mu          sync.Mutex
	pushBody    pushRequest
	apiKeys     []string
	subtitleHit atomic.Int32
}

func (f *fakeJobService) handler(baseURL *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/push", func(w http.ResponseWriter, r *http.Request) {
		f.pushCalls.Add(1)
		if r.Method != http.MethodPost {
			f.t.Errorf("push method = %s", r.Method)
		}
		f.mu.Lock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("X-API-Key"))
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &f.pushBody)
		f.mu.Unlock()

		if f.pushStatus != 0 {
			w.WriteHeader(f.pushStatus)
			w.Write([]byte(`{"detail":"push rejected"}`))
			return
		}
		json.NewEncoder(w).Encode(pushResponse{ID: "job-1"})
	})
	mux.HandleFunc("/v2/jobs/", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.pollCalls.Add(1))
		f.mu.Lock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("X-API-Key"))
		f.mu.Unlock()

		status := f.statuses[len(f.statuses)-1]
		if n <= len(f.statuses) {
			status = f.statuses[n-1]
		}
		resp := map[string]any{"id": strings.TrimPrefix(r.URL.Path, "/v2/jobs/"), "status": status}
		if status == StatusFinished && f.outputs != nil {
			resp["outputs"] = json.RawMessage(f.outputs(*baseURL))
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/subs/en.json", func(w http.ResponseWriter, r *http.Request) {
		f.subtitleHit.Add(1)
		if r.Header.Get("X-API-Key") != "" {
			f.t.Error("subtitle payload fetch must not carry the API key")
		}
		w.Write([]byte(subtitleJSON3))
	})
	return mux
}

func langMapOutputs(baseURL string) string {
	return fmt.Sprintf(`{"en": {"url": %q}}`, baseURL+"/subs/en.json")
}

func newTestClient(t *testing.T, f *fakeJobService, maxPolls int) (*HTTPClient, *httptest.Server) {
	t.Helper()
	var baseURL string
	srv := httptest.NewServer(f.handler(&baseURL))
	baseURL = srv.URL
	t.Cleanup(srv.Close)

	client := NewHTTPClient(Config{
		PushURL:      srv.URL + "/v2/push",
		JobsURL:      srv.URL + "/v2/jobs",
		Languages:    []string{"en"},
		PollInterval: time.Millisecond,
		MaxPolls:     maxPolls,
		Logger:       testLogger(),
	})
	return client, srv
}

func TestSubmitAndAwait_FinishedAfterFourPolls(t *testing.T) {
	f := &fakeJobService{
		t:        t,
		statuses: []Status{StatusQueued, StatusQueued, StatusRunning, StatusFinished},
		outputs:  langMapOutputs,
	}
	client, _ := newTestClient(t, f, DefaultMaxPolls)

	res, err := client.SubmitAndAwait(context.Background(), "https://www.youtube.com/watch?v=abc", "sieve-key")
	if err != nil {
		t.Fatalf("SubmitAndAwait() error = %v", err)
	}

	if got := f.pollCalls.Load(); got != 4 {
		t.Errorf("poll calls = %d, want 4", got)
	}
	if got := f.pushCalls.Load(); got != 1 {
		t.Errorf("push calls = %d, want 1", got)
	}
	if res.Polls != 4 || res.JobID != "job-1" || res.Language != "en" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Transcript.Events) != 1 || res.Transcript.Events[0].Segments[1].Text != " there" {
		t.Errorf("transcript = %+v", res.Transcript)
	}

	if f.pushBody.Function != DefaultFunction {
		t.Errorf("function = %q", f.pushBody.Function)
	}
	in := f.pushBody.Inputs
	if in.URL != "https://www.youtube.com/watch?v=abc" || in.DownloadType != "subtitles" || !in.IncludeSubtitles || in.SubtitleFormat != "json3" {
		t.Errorf("push inputs = %+v", in)
	}
	for _, key := range f.apiKeys {
		if key != "sieve-key" {
			t.Fatalf("X-API-Key = %q, want sieve-key", key)
		}
	}
}

func TestSubmitAndAwait_TimeoutAfterMaxPolls(t *testing.T) {
	f := &fakeJobService{t: t, statuses: []Status{StatusRunning}}
	client, _ := newTestClient(t, f, DefaultMaxPolls)

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v (%T), want *TimeoutError", err, err)
	}
	if timeoutErr.Polls != 120 {
		t.Errorf("polls = %d, want 120", timeoutErr.Polls)
	}
	if got := f.pollCalls.Load(); got != 120 {
		t.Errorf("poll calls = %d, want 120", got)
	}
	if !timeoutErr.IsRetryable() {
		t.Error("timeout should be retryable")
	}
}

func TestSubmitAndAwait_ErrorStatusFailsImmediately(t *testing.T) {
	f := &fakeJobService{t: t, statuses: []Status{StatusError}}
	client, _ := newTestClient(t, f, DefaultMaxPolls)

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")

	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want *JobFailedError", err)
	}
	if failed.Status != StatusError || failed.Cancelled() {
		t.Errorf("failed = %+v", failed)
	}
	if got := f.pollCalls.Load(); got != 1 {
		t.Errorf("poll calls = %d, want 1", got)
	}
	if failed.IsRetryable() {
		t.Error("terminal job failure must not be retryable")
	}
}

func TestSubmitAndAwait_Cancelled(t *testing.T) {
	f := &fakeJobService{t: t, statuses: []Status{StatusQueued, StatusCancelled}}
	client, _ := newTestClient(t, f, DefaultMaxPolls)

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")

	var failed *JobFailedError
	if !errors.As(err, &failed) || !failed.Cancelled() {
		t.Fatalf("error = %v, want cancelled JobFailedError", err)
	}
}

func TestSubmitAndAwait_MissingCredential(t *testing.T) {
	f := &fakeJobService{t: t, statuses: []Status{StatusFinished}}
	client, _ := newTestClient(t, f, DefaultMaxPolls)

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "  ")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if f.pushCalls.Load() != 0 {
		t.Error("no request should be made without a credential")
	}
}

func TestSubmitAndAwait_PushRejected(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantAuth  bool
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, false, true},
		{"bad request", http.StatusBadRequest, false, false},
		{"rate limited", http.StatusTooManyRequests, false, true},
		{"unauthorized", http.StatusUnauthorized, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeJobService{t: t, statuses: []Status{StatusFinished}, pushStatus: tt.status}
			client, _ := newTestClient(t, f, DefaultMaxPolls)

			_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")
			if err == nil {
				t.Fatal("expected error")
			}

			if tt.wantAuth {
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					t.Fatalf("error = %T, want *AuthError", err)
				}
				return
			}

			var subErr *SubmissionError
			if !errors.As(err, &subErr) {
				t.Fatalf("error = %T, want *SubmissionError", err)
			}
			if subErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", subErr.StatusCode, tt.status)
			}
			if subErr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", subErr.IsRetryable(), tt.retryable)
			}
			if f.pollCalls.Load() != 0 {
				t.Error("no polling after a rejected push")
			}
		})
	}
}

func TestSubmitAndAwait_PollHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/push") {
			json.NewEncoder(w).Encode(pushResponse{ID: "job-9"})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{
		PushURL:      srv.URL + "/push",
		JobsURL:      srv.URL + "/jobs",
		PollInterval: time.Millisecond,
		Logger:       testLogger(),
	})

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")

	var pollErr *PollError
	if !errors.As(err, &pollErr) {
		t.Fatalf("error = %v, want *PollError", err)
	}
	if pollErr.JobID != "job-9" || pollErr.StatusCode != http.StatusBadGateway || !pollErr.IsRetryable() {
		t.Errorf("poll error = %+v", pollErr)
	}
}

func TestSubmitAndAwait_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewHTTPClient(Config{PushURL: url + "/push", JobsURL: url + "/jobs", Logger: testLogger()})

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")

	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("error = %v, want *SubmissionError", err)
	}
	if !subErr.IsRetryable() {
		t.Error("transport failures should be retryable")
	}
}

func TestSubmitAndAwait_ArrayWrappedOutputs(t *testing.T) {
	f := &fakeJobService{
		t:        t,
		statuses: []Status{StatusFinished},
		outputs: func(baseURL string) string {
			return fmt.Sprintf(`[{"type":"dict","data":{"en":{"url":%q},"metadata":{"title":"Intro to Go","view_count":1200}}}]`, baseURL+"/subs/en.json")
		},
	}
	client, _ := newTestClient(t, f, DefaultMaxPolls)

	res, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")
	if err != nil {
		t.Fatalf("SubmitAndAwait() error = %v", err)
	}
	if res.Metadata == nil || res.Metadata.Title != "Intro to Go" || res.Metadata.Views != "1200" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	if f.subtitleHit.Load() != 1 {
		t.Errorf("subtitle fetches = %d, want 1", f.subtitleHit.Load())
	}
}

func TestSubmitAndAwait_RequestsMetadata(t *testing.T) {
	f := &fakeJobService{
		t:        t,
		statuses: []Status{StatusFinished},
		outputs: func(baseURL string) string {
			return fmt.Sprintf(`{"en":{"url":%q},"metadata":{"title":"Intro to Go","channel":"Gophers"}}`, baseURL+"/subs/en.json")
		},
	}
	var baseURL string
	srv := httptest.NewServer(f.handler(&baseURL))
	baseURL = srv.URL
	t.Cleanup(srv.Close)

	client := NewHTTPClient(Config{
		PushURL:         srv.URL + "/v2/push",
		JobsURL:         srv.URL + "/v2/jobs",
		PollInterval:    time.Millisecond,
		IncludeMetadata: true,
		Logger:          testLogger(),
	})

	res, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")
	if err != nil {
		t.Fatalf("SubmitAndAwait() error = %v", err)
	}
	f.mu.Lock()
	in := f.pushBody.Inputs
	f.mu.Unlock()
	if !in.IncludeMetadata {
		t.Errorf("push inputs = %+v, want include_metadata", in)
	}
	if res.Metadata == nil || res.Metadata.Title != "Intro to Go" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestSubmitAndAwait_NoSubtitleTracks(t *testing.T) {
	f := &fakeJobService{
		t:        t,
		statuses: []Status{StatusFinished},
		outputs:  func(string) string { return `{"metadata":{"title":"x"}}` },
	}
	client, _ := newTestClient(t, f, DefaultMaxPolls)

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")
	if !errors.Is(err, transcript.ErrNoCaptions) {
		t.Fatalf("error = %v, want ErrNoCaptions", err)
	}
}

func TestSubmitAndAwait_PayloadUndecodable(t *testing.T) {
	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/push", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pushResponse{ID: "j"})
	})
	mux.HandleFunc("/jobs/j", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":"j","status":"finished","outputs":{"en":{"url":%q}}}`, baseURL+"/subs")
	})
	mux.HandleFunc("/subs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<transcript>not json</transcript>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	baseURL = srv.URL

	client := NewHTTPClient(Config{PushURL: srv.URL + "/push", JobsURL: srv.URL + "/jobs", Logger: testLogger()})

	_, err := client.SubmitAndAwait(context.Background(), "https://example.com/v", "key")

	var payloadErr *PayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("error = %v, want *PayloadError", err)
	}
	if payloadErr.IsRetryable() {
		t.Error("decode failures should not be retryable")
	}
}

func TestSubmitAndAwait_ContextCancelledWhilePolling(t *testing.T) {
	f := &fakeJobService{t: t, statuses: []Status{StatusRunning}}
	var baseURL string
	srv := httptest.NewServer(f.handler(&baseURL))
	defer srv.Close()

	client := NewHTTPClient(Config{
		PushURL:      srv.URL + "/v2/push",
		JobsURL:      srv.URL + "/v2/jobs",
		PollInterval: time.Hour,
		Logger:       testLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.SubmitAndAwait(ctx, "https://example.com/v", "key")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestHTTPClient_ImplementsClientInterface(t *testing.T) {
	var _ Client = (*HTTPClient)(nil)
}
