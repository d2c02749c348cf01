package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tubelearn/tubelearn-agent/internal/credentials"
	"github.com/tubelearn/tubelearn-agent/internal/explain"
)

type keySource map[string]string

func (k keySource) Get(_ context.Context, key string) (string, error) {
	if v, ok := k[key]; ok {
		return v, nil
	}
	return "", credentials.ErrNotFound
}

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, content string, got *chatRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		*auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(got)

		w.Header().Set("Content-Type", "application/json")
		choices := `[]`
		if content != "" {
			b, _ := json.Marshal(content)
			choices = `[{"index":0,"message":{"role":"assistant","content":` + string(b) + `},"finish_reason":"stop"}]`
		}
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","model":"gpt-3.5-turbo","choices":` + choices + `,"usage":{"total_tokens":42}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Generate(t *testing.T) {
	var req chatRequest
	var auth string
	srv := completionServer(t, "• **Goroutines**: cheap threads", &req, &auth)

	gen := NewOpenAI(keySource{credentials.GenerationKey: "sk-test"}, Config{BaseURL: srv.URL + "/v1"})

	text, err := gen.Generate(context.Background(), explain.Request{
		Text:            "goroutines are multiplexed onto threads",
		Title:           "Concurrency in Go",
		PreviousContext: "last time we covered channels",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "• **Goroutines**: cheap threads" {
		t.Errorf("text = %q", text)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if req.Model != "gpt-3.5-turbo" || req.MaxTokens != 200 || math.Abs(req.Temperature-0.7) > 1e-6 {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	user := req.Messages[1].Content
	for _, want := range []string{`"Concurrency in Go"`, "goroutines are multiplexed", "last time we covered channels"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	var req chatRequest
	var auth string
	srv := completionServer(t, "", &req, &auth)

	gen := NewOpenAI(keySource{credentials.GenerationKey: "k"}, Config{BaseURL: srv.URL + "/v1/"})

	text, err := gen.Generate(context.Background(), explain.Request{Text: "x"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != NoExplanation {
		t.Errorf("text = %q, want %q", text, NoExplanation)
	}
}

func TestOpenAI_MissingKey(t *testing.T) {
	gen := NewOpenAI(keySource{}, Config{BaseURL: "http://127.0.0.1:1/v1"})

	_, err := gen.Generate(context.Background(), explain.Request{Text: "x"})
	if !errors.Is(err, credentials.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestOpenAI_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAI(keySource{credentials.GenerationKey: "bad"}, Config{BaseURL: srv.URL + "/v1"})

	_, err := gen.Generate(context.Background(), explain.Request{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "Incorrect API key") {
		t.Errorf("error = %v", err)
	}
}

func TestUserPrompt_DefaultTitle(t *testing.T) {
	p := userPrompt(explain.Request{Text: "hello"})
	if !strings.Contains(p, `"Educational Video"`) || strings.Contains(p, "Previous segment") {
		t.Errorf("prompt = %q", p)
	}
}
