package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/trackr/internal/domain"
)

// APIFetcher asks an external scraper service for post metrics.
type APIFetcher struct {
	client   *resty.Client
	endpoint string
}

// APIConfig holds configuration for the scraper service client.
type APIConfig struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
}

// NewAPIFetcher creates a client for POST {BaseURL}/v1/metrics.
// Parameters:
//   - cfg: scraper service configuration.
// Returns:
//   - *APIFetcher: initialized client.
func NewAPIFetcher(cfg *APIConfig) *APIFetcher {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &APIFetcher{
		client:   client,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/v1/metrics",
	}
}

type metricsRequest struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
}

type metricsResponse struct {
	Views    *int64 `json:"views"`
	Likes    *int64 `json:"likes"`
	Comments *int64 `json:"comments"`
	Shares   *int64 `json:"shares"`
	Error    string `json:"error,omitempty"`
}

// Fetch requests the metrics of one post. Missing counters read as zero,
// but a response without any counter is a failure.
func (f *APIFetcher) Fetch(ctx context.Context, url string, platform domain.Platform) (domain.Metrics, error) {
	var resp metricsResponse
	httpResp, err := f.client.R().
		SetContext(ctx).
		SetBody(metricsRequest{URL: url, Platform: string(platform)}).
		SetResult(&resp).
		SetError(&resp).
		Post(f.endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Metrics{}, fmt.Errorf("%w: %v", domain.ErrFetchTimeout, err)
		}
		return domain.Metrics{}, failure("scraper request: %v", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != "" {
			return domain.Metrics{}, failure("scraper returned HTTP %d: %s", httpResp.StatusCode(), resp.Error)
		}
		return domain.Metrics{}, failure("scraper returned HTTP %d", httpResp.StatusCode())
	}
	if resp.Error != "" {
		return domain.Metrics{}, failure("scraper error: %s", resp.Error)
	}
	if resp.Views == nil && resp.Likes == nil && resp.Comments == nil && resp.Shares == nil {
		return domain.Metrics{}, failure("scraper returned no metrics for %s", url)
	}

	return domain.Metrics{
		Views:    deref(resp.Views),
		Likes:    deref(resp.Likes),
		Comments: deref(resp.Comments),
		Shares:   deref(resp.Shares),
	}, nil
}

func deref(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
