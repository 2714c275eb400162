package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"autobill/internal/logger"
)

// OpenAIConfig configures the OpenAI completer.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // optional, for proxies and tests
	Model       string
	Temperature float32
	MaxTokens   int
	MaxRetries  int
}

// OpenAICompleter implements Completer with the OpenAI chat completions API.
type OpenAICompleter struct {
	client *openai.Client
	config OpenAIConfig
	log    zerolog.Logger
}

// NewOpenAICompleter creates a completer from config.
func NewOpenAICompleter(config OpenAIConfig) (*OpenAICompleter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("NewOpenAICompleter: %w", ErrMissingAPIKey)
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return NewOpenAICompleterWithClient(openai.NewClientWithConfig(clientConfig), config), nil
}

// NewOpenAICompleterWithClient creates a completer with an explicit client.
func NewOpenAICompleterWithClient(client *openai.Client, config OpenAIConfig) *OpenAICompleter {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &OpenAICompleter{
		client: client,
		config: config,
		log:    logger.WithComponent("ai-openai"),
	}
}

// Complete sends the request, retrying transport failures up to MaxRetries times.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	const op = "OpenAICompleter.Complete"

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.config.Model,
			Messages:    messages,
			Temperature: c.config.Temperature,
			MaxTokens:   c.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			lastErr = err
			c.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", c.config.MaxRetries).
				Msg("OpenAI request failed")
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			lastErr = ErrEmptyResponse
			continue
		}

		c.log.Debug().
			Str("model", c.config.Model).
			Int("attempt", attempt).
			Int("total_tokens", resp.Usage.TotalTokens).
			Msg("Received OpenAI completion")

		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%s: all %d attempts failed, last error: %w", op, c.config.MaxRetries, lastErr)
}
