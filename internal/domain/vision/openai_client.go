package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"plant-detector-go/internal/platform/observability"
	"plant-detector-go/internal/utils"
)

// ErrEmptyResponse is returned when the endpoint answers without any choice.
var ErrEmptyResponse = errors.New("vision endpoint returned no choices")

// Config configures the OpenAI-compatible client.
type Config struct {
	ModelName string
	BaseURL   string
	APIKey    string
	MaxTokens int
	// Timeout bounds the whole HTTP exchange; zero keeps the transport default.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint (xAI by default).
type OpenAIClient struct {
	config Config
	client *openai.Client
	logger *utils.Logger
}

// NewOpenAIClient builds the client once per process.
// The API key is not validated here; an empty key fails on the first call.
func NewOpenAIClient(cfg Config, logger *utils.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.ModelName) == "" {
		return nil, errors.New("vision model name is required")
	}
	if logger == nil {
		logger = utils.DefaultLogger
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	switch {
	case cfg.HTTPClient != nil:
		clientConfig.HTTPClient = cfg.HTTPClient
	case cfg.Timeout > 0:
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	if cfg.APIKey == "" {
		logger.WarnTag("Vision", "no API key configured, calls to %s will fail authentication", clientConfig.BaseURL)
	}
	logger.DebugTag("Vision", "client ready: base_url=%s model=%s", clientConfig.BaseURL, cfg.ModelName)

	return &OpenAIClient{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string {
	return c.config.ModelName
}

// Complete issues exactly one non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (text string, err error) {
	ctx, end := observability.StartSpan(ctx, "vision.openai", "chat.completion")
	defer func() { end(err) }()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}

	message := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: req.ImageURL,
				},
			},
		},
	}

	c.logger.DebugTag("Vision", "invoke vision API: model=%s prompt_length=%d image_url_length=%d max_tokens=%d",
		c.config.ModelName, len(req.Prompt), len(req.ImageURL), maxTokens)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.config.ModelName,
		Messages:  []openai.ChatCompletionMessage{message},
		MaxTokens: maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			c.logger.ErrorTag("Vision", "API error: status=%d code=%v message=%s",
				apiErr.HTTPStatusCode, apiErr.Code, apiErr.Message)
		} else {
			c.logger.ErrorTag("Vision", "request failed: %v", err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.DebugTag("Vision", "completion received: finish_reason=%s prompt_tokens=%d completion_tokens=%d",
		resp.Choices[0].FinishReason, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

// Describe is a short label for logs.
func (c *OpenAIClient) Describe() string {
	return fmt.Sprintf("%s@%s", c.config.ModelName, c.config.BaseURL)
}
