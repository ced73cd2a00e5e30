// Package registry is the read-only client for the external registry
// service that owns KPI, Principal, DataProduct and BusinessProcess records.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"insight-workflows/internal/models"
)

// ErrRecordNotFound is returned when the registry has no record for the key.
var ErrRecordNotFound = errors.New("registry record not found")

// Client is the lookup surface stage handlers depend on. The registry owns
// persistence; nothing here mutates.
type Client interface {
	GetKPI(ctx context.Context, name string) (*models.KPI, error)
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)
	GetDataProduct(ctx context.Context, id string) (*models.DataProduct, error)
	GetBusinessProcess(ctx context.Context, id string) (*models.BusinessProcess, error)
	ListKPIsForPrincipal(ctx context.Context, principalID string) ([]models.KPI, error)
}

type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) GetKPI(ctx context.Context, name string) (*models.KPI, error) {
	var kpi models.KPI
	if err := c.get(ctx, "/api/registry/kpis/"+url.PathEscape(name), &kpi); err != nil {
		return nil, err
	}
	return &kpi, nil
}

func (c *HTTPClient) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	var p models.Principal
	if err := c.get(ctx, "/api/registry/principals/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) GetDataProduct(ctx context.Context, id string) (*models.DataProduct, error) {
	var dp models.DataProduct
	if err := c.get(ctx, "/api/registry/data-products/"+url.PathEscape(id), &dp); err != nil {
		return nil, err
	}
	return &dp, nil
}

func (c *HTTPClient) GetBusinessProcess(ctx context.Context, id string) (*models.BusinessProcess, error) {
	var bp models.BusinessProcess
	if err := c.get(ctx, "/api/registry/business-processes/"+url.PathEscape(id), &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

func (c *HTTPClient) ListKPIsForPrincipal(ctx context.Context, principalID string) ([]models.KPI, error) {
	var result struct {
		Data []models.KPI `json:"data"`
	}
	path := "/api/registry/principals/" + url.PathEscape(principalID) + "/kpis"
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, path)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registry lookup failed (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
