package provider

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	internalerrors "github.com/anomalyscope/anomalyscope-go/internal/errors"
)

// AnthropicClient samples responses from the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicClient creates a new Anthropic provider.
func NewAnthropicClient(apiKey, model, proxyURL string, timeoutSeconds, maxTokens int) (*AnthropicClient, error) {
	httpClient, err := newHTTPClient(proxyURL, timeoutSeconds)
	if err != nil {
		return nil, err
	}

	client := anthropic.NewClient(
		apiKey,
		anthropic.WithHTTPClient(httpClient),
	)

	return &AnthropicClient{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Name returns the provider identifier.
func (c *AnthropicClient) Name() string {
	return string(TypeAnthropic)
}

// Generate samples count responses at the given temperature. Each sample is
// an independent Messages call so the model resamples from scratch.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, temperature float64, count int) ([]string, error) {
	responses := make([]string, 0, count)

	for i := 0; i < count; i++ {
		response, err := retryWithBackoff(defaultMaxRetries, func() (anthropic.MessagesResponse, error) {
			return c.callAPI(ctx, prompt, temperature)
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic sample %d/%d failed: %w", i+1, count, err)
		}

		text, err := extractText(response)
		if err != nil {
			return nil, err
		}
		responses = append(responses, text)
	}

	return responses, nil
}

// callAPI makes the actual API call to the Messages endpoint.
func (c *AnthropicClient) callAPI(ctx context.Context, prompt string, temperature float64) (anthropic.MessagesResponse, error) {
	temp := float32(temperature)

	request := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: &temp,
	}

	response, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		// Sanitize error to prevent credentials from appearing in error messages
		return anthropic.MessagesResponse{}, internalerrors.Wrapf(err, "API call failed")
	}

	return response, nil
}

// extractText concatenates the text blocks of a Messages response.
func extractText(response anthropic.MessagesResponse) (string, error) {
	if len(response.Content) == 0 {
		return "", fmt.Errorf("empty response from Anthropic")
	}

	text := ""
	for _, content := range response.Content {
		if content.Type == "text" && content.Text != nil {
			text += *content.Text
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text content in Anthropic response")
	}
	return text, nil
}

// Ensure AnthropicClient implements Provider interface
var _ Provider = (*AnthropicClient)(nil)
