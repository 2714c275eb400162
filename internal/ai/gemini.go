package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"autobill/internal/logger"
)

// GeminiCompleter implements Completer with Google's Gemini models.
type GeminiCompleter struct {
	client *genai.Client
	model  string
	temp   float32
	log    zerolog.Logger
}

// NewGeminiCompleter connects to the Gemini API with apiKey.
func NewGeminiCompleter(ctx context.Context, apiKey, model string, temperature float32) (*GeminiCompleter, error) {
	const op = "NewGeminiCompleter"

	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingAPIKey)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create Gemini client: %w", op, err)
	}

	return &GeminiCompleter{
		client: client,
		model:  model,
		temp:   temperature,
		log:    logger.WithComponent("ai-gemini"),
	}, nil
}

// Complete asks the model for a JSON answer to req.
func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	const op = "GeminiCompleter.Complete"

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temp)
	model.ResponseMIMEType = "application/json"
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var out strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				out.WriteString(string(txt))
			}
		}
		break
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}

	g.log.Debug().Str("model", g.model).Int("response_length", out.Len()).Msg("Received Gemini completion")
	return out.String(), nil
}

// Close releases the underlying client.
func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}
