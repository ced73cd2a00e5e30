// Package reasoning defines the black-box reasoning-provider collaborator
// invoked by the debate engine. Only the provider's free text may vary
// between runs; everything the engine derives from it is deterministic.
package reasoning

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrProviderTimeout = errors.New("REASONING_PROVIDER_TIMEOUT")
	ErrProviderFailed  = errors.New("REASONING_PROVIDER_FAILED")
)

// Request is a prompt-shaped call to the provider.
type Request struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Response carries the provider's structured text back to the caller.
type Response struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ExtractJSON pulls a JSON object out of a free-text response. Providers
// often wrap payloads in markdown fences or prose; the debate engine only
// cares about the outermost object.
func ExtractJSON(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
