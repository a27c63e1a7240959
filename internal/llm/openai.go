package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible chat completion client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// OpenAIClient adapts the OpenAI chat completion API to the Client
// interface. Any endpoint speaking the same protocol works through BaseURL.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Completion, error) {
	temperature := c.temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, message := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return Completion{}, classifyProviderError(req.Operation, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("model call %s: %w", req.Operation, ErrEmptyCompletion)
	}
	choice := resp.Choices[0]
	return Completion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// classifyProviderError maps provider failures onto the retryability model:
// throttling and server-side errors are transient, other API errors are
// terminal, and transport failures without a status are worth retrying.
func classifyProviderError(op Operation, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
		return &ProviderError{
			Operation:  op,
			StatusCode: apiErr.HTTPStatusCode,
			Retryable:  retryable,
			Err:        err,
		}
	}
	return &ProviderError{Operation: op, Retryable: true, Err: err}
}
