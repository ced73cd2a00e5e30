// internal/common/reasoning/http.go
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/metrics"
)

// HTTPConfig tunes the HTTP provider.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
}

// HTTPProvider posts prompt requests to a generation endpoint, retrying
// transient failures with exponential backoff under the caller's context.
type HTTPProvider struct {
	config HTTPConfig
	// No client-level timeout: the caller's context is the only budget.
	client *http.Client
	logger logger.Logger
}

func NewHTTPProvider(config HTTPConfig, log logger.Logger) *HTTPProvider {
	return &HTTPProvider{
		config: config,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"provider": "http"}),
	}
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	body, _ := json.Marshal(req)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.ReasoningCalls.WithLabelValues("http", "timeout").Inc()
				return nil, ErrProviderTimeout
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		}

		resp, lastErr = p.client.Do(httpReq)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			metrics.ReasoningCalls.WithLabelValues("http", "timeout").Inc()
			return nil, ErrProviderTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			metrics.ReasoningCalls.WithLabelValues("http", "timeout").Inc()
			return nil, ErrProviderTimeout
		}
		metrics.ReasoningCalls.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, lastErr)
	}

	if resp == nil {
		metrics.ReasoningCalls.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("%w: no successful response after retries", ErrProviderFailed)
	}
	defer resp.Body.Close()

	var apiResponse Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		metrics.ReasoningCalls.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("%w: decode error: %v", ErrProviderFailed, err)
	}

	if strings.TrimSpace(apiResponse.Text) == "" {
		metrics.ReasoningCalls.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("%w: empty response text", ErrProviderFailed)
	}

	if apiResponse.Confidence < 0.0 || apiResponse.Confidence > 1.0 {
		apiResponse.Confidence = 0.5
	}

	metrics.ReasoningCalls.WithLabelValues("http", "ok").Inc()
	p.logger.Debug("generation completed", map[string]interface{}{
		"confidence": apiResponse.Confidence,
		"textLength": len(apiResponse.Text),
	})

	return &apiResponse, nil
}
