// internal/common/reasoning/gemini.go
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"insight-workflows/internal/common/metrics"
)

// GeminiProvider calls the Gemini API directly instead of going through an
// intermediate generation service.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			metrics.ReasoningCalls.WithLabelValues("gemini", "timeout").Inc()
			return nil, ErrProviderTimeout
		}
		metrics.ReasoningCalls.WithLabelValues("gemini", "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		metrics.ReasoningCalls.WithLabelValues("gemini", "error").Inc()
		return nil, fmt.Errorf("%w: empty response text", ErrProviderFailed)
	}

	metrics.ReasoningCalls.WithLabelValues("gemini", "ok").Inc()
	return &Response{Text: text, Confidence: 1.0}, nil
}
