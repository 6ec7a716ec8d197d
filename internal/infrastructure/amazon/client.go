package amazon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
	"github.com/sellerpulse/backend/internal/infrastructure/ratelimit"
)

// maxResponseSize is the maximum allowed response size from the API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client implements the marketplace.Client port for the Amazon
// selling-partner API. All order and fee calls go through the shared rate
// limiter; the access token is opaque and refreshed once per sync cycle by
// the orchestrator.
type Client struct {
	config      *Config
	credentials marketplace.CredentialProvider
	limiter     ratelimit.Limiter
	httpClient  *http.Client
	logger      *zap.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a new selling-partner API client
func NewClient(config *Config, credentials marketplace.CredentialProvider, limiter ratelimit.Limiter, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config:      config,
		credentials: credentials,
		limiter:     limiter,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}, nil
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// GetAccessToken exchanges the active refresh credential for a short-lived
// access token and retains it for subsequent calls.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	cred, err := c.credentials.ActiveCredential(ctx)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("amazon: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", marketplace.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read token response: %v", marketplace.ErrAuthFailed, err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: failed to parse token response: %v", marketplace.ErrAuthFailed, err)
	}

	if resp.StatusCode >= 400 || tok.Error != "" {
		return "", fmt.Errorf("%w: %s %s (HTTP %d)", marketplace.ErrAuthFailed, tok.Error, tok.ErrorDesc, resp.StatusCode)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access token", marketplace.ErrAuthFailed)
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()

	return tok.AccessToken, nil
}

// accessToken returns the currently held access token.
func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders fetches one page of orders created after since.
func (c *Client) FetchOrders(ctx context.Context, since time.Time, nextToken string) (*marketplace.OrderPage, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("MarketplaceIds", c.config.MarketplaceID)
	query.Set("MaxResultsPerPage", fmt.Sprintf("%d", c.config.PageSize))
	if nextToken != "" {
		query.Set("NextToken", nextToken)
	} else {
		query.Set("CreatedAfter", since.UTC().Format(time.RFC3339))
	}

	endpoint := c.config.APIBaseURL + "/orders/v0/orders?" + query.Encode()
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp ordersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse orders response: %v", marketplace.ErrInvalidResponse, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s - %s", marketplace.ErrFetchFailed, resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if resp.Payload == nil {
		return nil, marketplace.ErrInvalidResponse
	}

	page := &marketplace.OrderPage{
		Orders:    make([]marketplace.PlatformOrder, 0, len(resp.Payload.Orders)),
		NextToken: resp.Payload.NextToken,
		HasMore:   resp.Payload.NextToken != "",
	}
	for i := range resp.Payload.Orders {
		page.Orders = append(page.Orders, convertOrderRecord(&resp.Payload.Orders[i]))
	}

	return page, nil
}

// ---------------------------------------------------------------------------
// Fees
// ---------------------------------------------------------------------------

// EstimateFee returns the marketplace fee estimate for an ASIN at a price.
// A non-positive price short-circuits to zero without spending quota: a
// zero-priced item cannot owe a fee. An empty marketplaceID resolves to the
// client's configured marketplace. Upstream failures degrade to zero with
// a logged warning; total pipeline availability is valued over per-item fee
// precision, and a zero fee is the conservative direction (it overstates
// profit, which downstream reporting surfaces as an anomaly).
func (c *Client) EstimateFee(ctx context.Context, asin string, price decimal.Decimal, marketplaceID string) (decimal.Decimal, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, nil
	}
	if marketplaceID == "" {
		marketplaceID = c.config.MarketplaceID
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return decimal.Zero, err
	}

	reqBody := feesEstimateRequest{
		FeesEstimateRequest: feesEstimateBody{
			MarketplaceID:     marketplaceID,
			Identifier:        asin,
			IsAmazonFulfilled: true,
			PriceToEstimateFees: priceToEstimate{
				ListingPrice: moneyAmount{CurrencyCode: "USD", Amount: price.StringFixed(2)},
			},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		c.logger.Warn("Failed to build fee estimate request, defaulting fee to zero",
			zap.String("asin", asin),
			zap.Error(err),
		)
		return decimal.Zero, nil
	}

	endpoint := c.config.APIBaseURL + "/products/fees/v0/items/" + url.PathEscape(asin) + "/feesEstimate"
	body, err := c.doRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		c.logger.Warn("Fee estimate call failed, defaulting fee to zero",
			zap.String("asin", asin),
			zap.String("price", price.StringFixed(2)),
			zap.Error(err),
		)
		return decimal.Zero, nil
	}

	var resp feesEstimateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("Failed to parse fee estimate response, defaulting fee to zero",
			zap.String("asin", asin),
			zap.Error(err),
		)
		return decimal.Zero, nil
	}

	if len(resp.Errors) > 0 || resp.Payload == nil ||
		resp.Payload.FeesEstimateResult == nil ||
		resp.Payload.FeesEstimateResult.FeesEstimate == nil {
		c.logger.Warn("Fee estimate response missing result, defaulting fee to zero",
			zap.String("asin", asin),
		)
		return decimal.Zero, nil
	}

	return parseAmount(resp.Payload.FeesEstimateResult.FeesEstimate.TotalFeesEstimate.Amount), nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// doRequest performs an authorized HTTP request to the selling-partner API
func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to create request: %w", err)
	}
	req.Header.Set("x-amz-access-token", c.accessToken())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", marketplace.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, marketplace.ErrRateLimited
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d", marketplace.ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", marketplace.ErrFetchFailed, resp.StatusCode)
	}

	return body, nil
}

// convertOrderRecord converts an API order record to the domain value object
func convertOrderRecord(rec *orderRecord) marketplace.PlatformOrder {
	quantity := rec.QuantityOrdered
	if quantity == 0 {
		quantity = rec.QuantityShipped
	}

	order := marketplace.PlatformOrder{
		ItemID:         rec.OrderItemID,
		OrderID:        rec.AmazonOrderID,
		ASIN:           rec.ASIN,
		SKU:            rec.SellerSKU,
		Status:         rec.OrderStatus,
		ListPrice:      parseAmount(rec.ItemPrice.Amount),
		QuantitySold:   quantity,
		TrackingNumber: rec.TrackingNumber,
	}

	if rec.PurchaseDate != "" {
		if t, err := time.Parse(time.RFC3339, rec.PurchaseDate); err == nil {
			order.PurchaseDate = t
		}
	}

	return order
}

// parseAmount parses a decimal amount string, returning zero on failure
func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Ensure Client implements the marketplace.Client port
var _ marketplace.Client = (*Client)(nil)
