// Package openaicompat generates SQL through any OpenAI-compatible chat completion
// endpoint. The default targets DeepSeek-V3 on GitHub Models.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/guillermoBallester/querygate/internal/adapter/llm"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "https://models.github.ai/inference"
	DefaultModel   = "deepseek/DeepSeek-V3-0324"
)

// ErrEmptyCompletion is returned when the model answers with no choices or blank content.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Config holds the endpoint settings. Zero values select the defaults.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dialect    string
	Retry      llm.RetryPolicy
	HTTPClient *http.Client
}

// Generator implements port.SQLGenerator over the chat completions API.
type Generator struct {
	client  openai.Client
	model   string
	dialect string
	retry   llm.RetryPolicy
}

var _ port.SQLGenerator = (*Generator)(nil)

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cfg.Retry = cfg.Retry.WithDefaultDelays()
	cfg.Retry.Retryable = isRetryable

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled by llm.Retry so both backends behave the same.
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Generator{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		dialect: cfg.Dialect,
		retry:   cfg.Retry,
	}, nil
}

// Generate sends the rendered prompt and returns the raw model answer.
func (g *Generator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You translate questions into a single read-only SQL query."),
			openai.UserMessage(llm.BuildPrompt(g.dialect, req)),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(llm.DefaultTemperature),
		TopP:        openai.Float(llm.DefaultTopP),
		MaxTokens:   openai.Int(llm.DefaultMaxTokens),
	}

	return llm.Retry(ctx, g.retry, func(ctx context.Context) (string, error) {
		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("invoking model %s: %w", g.model, err)
		}
		if len(completion.Choices) == 0 {
			return "", ErrEmptyCompletion
		}
		content := strings.TrimSpace(completion.Choices[0].Message.Content)
		if content == "" {
			return "", ErrEmptyCompletion
		}
		return content, nil
	})
}

// isRetryable trusts the HTTP status of API errors and falls back to the
// transport classification for everything else.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return llm.IsRetryable(err)
}
