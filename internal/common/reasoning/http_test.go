// internal/common/reasoning/http_test.go
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-workflows/internal/common/logger"
)

func genResponse(text string, confidence float64) string {
	data, _ := json.Marshal(map[string]interface{}{
		"text":       text,
		"confidence": confidence,
	})
	return string(data)
}

func TestHTTPProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)
		assert.NotEmpty(t, reqBody["prompt"])
		assert.Equal(t, float64(500), reqBody["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(genResponse("A structured answer.", 0.9)))
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{BaseURL: server.URL, MaxRetries: 1}, logger.NewTestLogger(t))

	resp, err := provider.Generate(context.Background(), Request{
		Prompt:      "analyze this",
		MaxTokens:   500,
		Temperature: 0.4,
	})

	require.NoError(t, err)
	assert.Equal(t, "A structured answer.", resp.Text)
	assert.Equal(t, 0.9, resp.Confidence)
}

func TestHTTPProvider_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(10 * time.Second):
			return
		}
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{BaseURL: server.URL, MaxRetries: 0}, logger.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := provider.Generate(ctx, Request{Prompt: "slow"})

	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrProviderTimeout), "expected timeout, got: %v", err)
}

func TestHTTPProvider_Generate_RetryThenSuccess(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(genResponse("after retry", 0.8)))
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{BaseURL: server.URL, MaxRetries: 2}, logger.NewTestLogger(t))

	resp, err := provider.Generate(context.Background(), Request{Prompt: "retry me"})

	require.NoError(t, err)
	assert.Equal(t, "after retry", resp.Text)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestHTTPProvider_Generate_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{BaseURL: server.URL, MaxRetries: 0}, logger.NewTestLogger(t))

	resp, err := provider.Generate(context.Background(), Request{Prompt: "x"})

	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrProviderFailed))
}

func TestHTTPProvider_Generate_EmptyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(genResponse("   ", 0.5)))
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{BaseURL: server.URL, MaxRetries: 0}, logger.NewTestLogger(t))

	resp, err := provider.Generate(context.Background(), Request{Prompt: "x"})

	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrProviderFailed))
}

func TestHTTPProvider_Generate_InvalidConfidenceClamped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(genResponse("fine", 1.5)))
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{BaseURL: server.URL, MaxRetries: 0}, logger.NewTestLogger(t))

	resp, err := provider.Generate(context.Background(), Request{Prompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, 0.5, resp.Confidence)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose wrapped", `Here you go: {"a":1} hope it helps`, `{"a":1}`, true},
		{"no object", "nothing here", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
