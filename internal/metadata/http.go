package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPConfig configures the metadata HTTP client
type HTTPConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// HTTPResolver reads names from the discovery platform's metadata API:
// GET {base}/candidates/{id} and GET {base}/targets/{id}, each answering {"name": "..."}.
type HTTPResolver struct {
	client  *retryablehttp.Client
	baseURL string
}

type nameResponse struct {
	Name string `json:"name"`
}

// NewHTTPResolver creates an HTTPResolver
func NewHTTPResolver(cfg HTTPConfig) *HTTPResolver {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	// *slog.Logger satisfies retryablehttp.LeveledLogger
	client.Logger = nil
	if cfg.Logger != nil {
		client.Logger = cfg.Logger
	}

	return &HTTPResolver{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (r *HTTPResolver) CandidateName(ctx context.Context, id string) (string, error) {
	return r.lookup(ctx, "candidates", id)
}

func (r *HTTPResolver) TargetName(ctx context.Context, id string) (string, error) {
	return r.lookup(ctx, "targets", id)
}

func (r *HTTPResolver) lookup(ctx context.Context, collection, id string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", r.baseURL, collection, url.PathEscape(id))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("metadata service returned %d for %s", resp.StatusCode, endpoint)
	}

	var body nameResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode metadata response: %w", err)
	}
	return body.Name, nil
}
