package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
)

// maxResponseSize is the maximum allowed response size from the carrier API (1MB)
const maxResponseSize = 1 * 1024 * 1024

// ErrFetcherMissingEndpoint indicates the carrier API endpoint is not configured
var ErrFetcherMissingEndpoint = errors.New("tracking: carrier API endpoint is required")

// StatusFetcher looks up the current shipment status for a tracking number.
type StatusFetcher interface {
	// FetchStatus returns the carrier-reported status string.
	FetchStatus(ctx context.Context, trackingNumber string) (string, error)
}

// FetcherConfig holds configuration for the carrier tracking API
type FetcherConfig struct {
	// Endpoint is the base URL of the carrier tracking API
	Endpoint string
	// APIKey authorizes requests, sent as a bearer token
	APIKey string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// Validate validates the fetcher configuration and fills in defaults
func (c *FetcherConfig) Validate() error {
	if c.Endpoint == "" {
		return ErrFetcherMissingEndpoint
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
	return nil
}

// trackingResponse is the carrier API response shape
type trackingResponse struct {
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	StatusDetail   string `json:"status_detail"`
}

// HTTPStatusFetcher implements StatusFetcher against an HTTP carrier API.
type HTTPStatusFetcher struct {
	config     *FetcherConfig
	httpClient *http.Client
}

// NewHTTPStatusFetcher creates a new carrier API status fetcher
func NewHTTPStatusFetcher(config *FetcherConfig) (*HTTPStatusFetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HTTPStatusFetcher{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// FetchStatus looks up one tracking number.
func (f *HTTPStatusFetcher) FetchStatus(ctx context.Context, trackingNumber string) (string, error) {
	endpoint := f.config.Endpoint + "/track/" + url.PathEscape(trackingNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("tracking: failed to create request: %w", err)
	}
	if f.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.config.APIKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", marketplace.ErrTrackingUpdateFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", marketplace.ErrTrackingUpdateFailed, err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: HTTP %d", marketplace.ErrTrackingUpdateFailed, resp.StatusCode)
	}

	var tr trackingResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", marketplace.ErrTrackingUpdateFailed, err)
	}
	if tr.Status == "" {
		return "", fmt.Errorf("%w: response carried no status", marketplace.ErrTrackingUpdateFailed)
	}

	return tr.Status, nil
}

// Ensure HTTPStatusFetcher implements StatusFetcher
var _ StatusFetcher = (*HTTPStatusFetcher)(nil)
