// Package bedrock generates SQL with an Anthropic Claude model on Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/guillermoBallester/querygate/internal/adapter/llm"
	"github.com/guillermoBallester/querygate/internal/core/port"
)

const anthropicVersion = "bedrock-2023-05-31"

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// InvokeModelAPI is the subset of *bedrockruntime.Client the generator uses.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Generator implements port.SQLGenerator over Bedrock InvokeModel.
type Generator struct {
	client  InvokeModelAPI
	modelID string
	dialect string
	retry   llm.RetryPolicy
}

var _ port.SQLGenerator = (*Generator)(nil)

// NewGenerator loads the default AWS credential chain for region.
func NewGenerator(ctx context.Context, region, modelID, dialect string, policy llm.RetryPolicy) (*Generator, error) {
	if modelID == "" {
		return nil, fmt.Errorf("bedrock model ID is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	// Retries are handled by llm.Retry so both backends behave the same.
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewGeneratorWithClient(client, modelID, dialect, policy), nil
}

func NewGeneratorWithClient(client InvokeModelAPI, modelID, dialect string, policy llm.RetryPolicy) *Generator {
	policy = policy.WithDefaultDelays()
	policy.Retryable = isRetryable
	return &Generator{
		client:  client,
		modelID: modelID,
		dialect: dialect,
		retry:   policy,
	}
}

// modelErrorCodes are Bedrock runtime errors that clear up on their own.
var modelErrorCodes = map[string]struct{}{
	"InternalServerException":     {},
	"ServiceUnavailableException": {},
	"ModelNotReadyException":      {},
	"ModelTimeoutException":       {},
}

var retryables = retry.IsErrorRetryables(append(
	append([]retry.IsErrorRetryable{}, retry.DefaultRetryables...),
	retry.RetryableErrorCode{Codes: modelErrorCodes},
))

// isRetryable classifies errors by API error code and transport failure the
// same way the SDK's standard retryer does.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return retryables.IsErrorRetryable(err) == aws.TrueTernary
}

// Generate sends the rendered prompt and returns the raw model answer.
func (g *Generator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        llm.DefaultMaxTokens,
		Temperature:      llm.DefaultTemperature,
		TopP:             llm.DefaultTopP,
		System:           "You translate questions into a single read-only SQL query.",
		Messages: []claudeMessage{
			{Role: "user", Content: llm.BuildPrompt(g.dialect, req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("serializing claude request: %w", err)
	}

	return llm.Retry(ctx, g.retry, func(ctx context.Context) (string, error) {
		output, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(g.modelID),
			Body:        body,
			Accept:      aws.String("application/json"),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return "", fmt.Errorf("invoking model %s: %w", g.modelID, err)
		}

		var resp claudeResponse
		if err := json.Unmarshal(output.Body, &resp); err != nil {
			return "", fmt.Errorf("decoding bedrock response: %w", err)
		}
		for _, part := range resp.Content {
			if part.Type == "text" && strings.TrimSpace(part.Text) != "" {
				return strings.TrimSpace(part.Text), nil
			}
		}
		return "", ErrEmptyCompletion
	})
}
