// Package summarizer implements websum.Summarizer against OpenAI-compatible
// chat-completion APIs, plus a static summarizer for dry runs.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/websum"
)

// Temperature is fixed low so repeated runs produce similar notes.
const Temperature = 0.2

// DefaultSystemPrompt asks for a title line followed by a markdown summary.
const DefaultSystemPrompt = `You turn web pages into concise study notes.
Reply in markdown. The first line must be a short, specific title for the page with no prefix.
After the title, summarize the key points as headings and bullet lists. Keep facts, numbers,
names and code identifiers exact. Do not invent content that is not on the page.
When the input is one segment of a longer page, summarize only that segment.`

// Config selects the endpoint and model.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	// HTTPClient overrides the transport; tests point it at httptest servers.
	HTTPClient *http.Client `mapstructure:"-"`
}

// OpenAI calls the chat-completions endpoint once per Summarize.
type OpenAI struct {
	client  *openai.Client
	model   string
	prompt  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAI builds the client. BaseURL may point at any compatible server.
func NewOpenAI(cfg Config, logger *zap.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("summarizer model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	prompt := cfg.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		prompt:  prompt,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Summarize sends the page context and text and returns the model's reply.
func (o *OpenAI) Summarize(ctx context.Context, text string, hints websum.SummaryHints) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.prompt},
			{Role: openai.ChatMessageRoleUser, Content: UserContent(text, hints)},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion (status %d): %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	o.logger.Debug("summary generated",
		zap.String("url", hints.URL),
		zap.Int("segment", hints.Index),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("dur", time.Since(start)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// UserContent formats the user message for one call.
func UserContent(text string, hints websum.SummaryHints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page title: %s\nPage URL: %s\n", hints.Title, hints.URL)
	if hints.Total > 0 {
		fmt.Fprintf(&b, "Segment: %d/%d\n\nSegment content:\n", hints.Index, hints.Total)
	} else {
		b.WriteString("\nPage content:\n")
	}
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}
