// Package ai wraps text-generation providers behind a single Completer interface.
//
// Implementations send a system instruction plus a user prompt and return the raw
// model text. Callers are expected to ask for JSON and parse it themselves;
// ExtractJSON strips the markdown fences models like to wrap around it.
package ai

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the provider answers without any content.
	ErrEmptyResponse = errors.New("empty response from AI provider")

	// ErrMissingAPIKey is returned when a provider is constructed without credentials.
	ErrMissingAPIKey = errors.New("missing AI provider API key")
)

// Request is one completion call.
type Request struct {
	System string
	Prompt string
}

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ExtractJSON returns the JSON payload of a model response, removing
// markdown code fences if present.
func ExtractJSON(response string) string {
	cleaned := strings.TrimSpace(response)
	switch {
	case strings.HasPrefix(cleaned, "```json"):
		cleaned = strings.TrimPrefix(cleaned, "```json")
	case strings.HasPrefix(cleaned, "```"):
		cleaned = strings.TrimPrefix(cleaned, "```")
	default:
		return cleaned
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}
