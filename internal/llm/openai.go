// Package llm implements explanation generation on top of an OpenAI-compatible
// chat completion endpoint.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/tubelearn/tubelearn-agent/internal/credentials"
	"github.com/tubelearn/tubelearn-agent/internal/explain"
	"github.com/tubelearn/tubelearn-agent/internal/logging"
)

const (
	DefaultModel       = openai.GPT3Dot5Turbo
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 200
	DefaultTitle       = "Educational Video"

	NoExplanation = "No explanation generated"
)

const systemPrompt = `You are a concise learning assistant. Create SHORT, PUNCHY insights using bullet points.

RULES:
- Maximum 3-4 bullet points
- Each bullet: 1-2 sentences MAX
- Start with the insight, not meta-commentary
- Use **bold** for key concepts
- Focus on the "aha!" moments
- Make it scannable and memorable
- NO phrases like "In this segment" or "The speaker discusses"
- Get straight to the point

Example format:
• **Key Concept**: Quick insight or principle
• **Why it matters**: Real-world impact
• **Remember this**: Memorable takeaway`

type Config struct {
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// OpenAI resolves the generation key on every call so a key set at runtime
// takes effect without a restart.
type OpenAI struct {
	creds  credentials.Source
	cfg    Config
	logger *slog.Logger
}

func NewOpenAI(creds credentials.Source, cfg Config) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &OpenAI{creds: creds, cfg: cfg, logger: logging.WithComponent(logger, "llm")}
}

func (o *OpenAI) Generate(ctx context.Context, req explain.Request) (string, error) {
	key, err := o.creds.Get(ctx, credentials.GenerationKey)
	if err != nil {
		return "", fmt.Errorf("generation key: %w", err)
	}

	conf := openai.DefaultConfig(key)
	if o.cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(o.cfg.BaseURL, "/")
	}
	conf.HTTPClient = o.cfg.HTTPClient
	client := openai.NewClientWithConfig(conf)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	o.logger.Debug("chat completion finished",
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens,
	)

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return NoExplanation, nil
	}
	return resp.Choices[0].Message.Content, nil
}

func userPrompt(req explain.Request) string {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultTitle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Video: \"%s\"\n\n", title)
	if prev := strings.TrimSpace(req.PreviousContext); prev != "" {
		fmt.Fprintf(&b, "Previous segment (context only):\n\"%s\"\n\n", prev)
	}
	fmt.Fprintf(&b, "Transcript:\n\"%s\"\n\n", req.Text)
	b.WriteString("Give me the key insights as bullet points. Be direct and concise.")
	return b.String()
}
