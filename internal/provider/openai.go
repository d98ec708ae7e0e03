package provider

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	internalerrors "github.com/anomalyscope/anomalyscope-go/internal/errors"
)

// OpenAIClient samples responses from an OpenAI-compatible chat completion
// API. With a custom base URL it also serves LM Studio and other local
// OpenAI-compatible servers.
type OpenAIClient struct {
	client    *openai.Client
	name      Type
	model     string
	maxTokens int
}

// OpenAIConfig holds OpenAI-compatible client configuration.
type OpenAIConfig struct {
	APIKey         string
	Model          string // e.g. "gpt-4o-mini"
	BaseURL        string // empty for api.openai.com; set for LM Studio etc.
	ProxyURL       string
	TimeoutSeconds int
	MaxTokens      int
	Name           Type // provider identity; defaults to TypeOpenAI
}

// NewOpenAIClient creates a new OpenAI-compatible provider.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if cfg.Name == "" {
		cfg.Name = TypeOpenAI
	}

	httpClient, err := newHTTPClient(cfg.ProxyURL, cfg.TimeoutSeconds)
	if err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConfig),
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return string(c.name)
}

// Generate samples count responses at the given temperature. The n parameter
// of the chat completion API requests all samples in one call; servers that
// ignore n (LM Studio does) are topped up with additional single-sample calls.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, temperature float64, count int) ([]string, error) {
	responses := make([]string, 0, count)

	first, err := c.callAPI(ctx, prompt, temperature, count)
	if err != nil {
		return nil, err
	}
	responses = append(responses, first...)

	for len(responses) < count {
		extra, err := c.callAPI(ctx, prompt, temperature, 1)
		if err != nil {
			return nil, err
		}
		responses = append(responses, extra...)
	}

	return responses[:count], nil
}

// callAPI requests n chat completion choices and returns their contents.
func (c *OpenAIClient) callAPI(ctx context.Context, prompt string, temperature float64, n int) ([]string, error) {
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         float32(temperature),
		N:                   n,
		MaxCompletionTokens: c.maxTokens,
	}

	response, err := retryWithBackoff(defaultMaxRetries, func() (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, request)
		if err != nil {
			// Sanitize error to prevent credentials from appearing in error messages
			return openai.ChatCompletionResponse{}, internalerrors.Wrapf(err, "API call failed")
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", c.name)
	}

	contents := make([]string, 0, len(response.Choices))
	for _, choice := range response.Choices {
		contents = append(contents, choice.Message.Content)
	}
	return contents, nil
}

// Ensure OpenAIClient implements Provider interface
var _ Provider = (*OpenAIClient)(nil)
