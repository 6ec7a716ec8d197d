package amazon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// noopLimiter grants every acquisition immediately.
type noopLimiter struct {
	acquired atomic.Int64
}

func (l *noopLimiter) Acquire(_ context.Context) error {
	l.acquired.Add(1)
	return nil
}

func newTestClient(t *testing.T, apiBaseURL, tokenURL string) (*Client, *noopLimiter) {
	t.Helper()
	cfg := NewConfig("client-id", "client-secret", "refresh-token", "ATVPDKIKX0DER")
	cfg.APIBaseURL = apiBaseURL
	cfg.TokenURL = tokenURL
	cfg.PageSize = 50

	limiter := &noopLimiter{}
	client, err := NewClient(cfg, NewStaticCredentialProvider(cfg), limiter, zap.NewNop())
	require.NoError(t, err)
	return client, limiter
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func TestClient_GetAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("exchanges refresh token for access token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
			assert.Equal(t, "refresh-token", r.PostFormValue("refresh_token"))
			assert.Equal(t, "client-id", r.PostFormValue("client_id"))
			assert.Equal(t, "client-secret", r.PostFormValue("client_secret"))
			w.Write([]byte(`{"access_token":"Atza|token-123","token_type":"bearer","expires_in":3600}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, "http://unused", srv.URL)
		token, err := client.GetAccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Atza|token-123", token)
	})

	t.Run("reports auth failure on token endpoint error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token expired"}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, "http://unused", srv.URL)
		_, err := client.GetAccessToken(ctx)
		assert.ErrorIs(t, err, marketplace.ErrAuthFailed)
		assert.Contains(t, err.Error(), "invalid_grant")
	})

	t.Run("rejects token response without an access token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"token_type":"bearer"}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, "http://unused", srv.URL)
		_, err := client.GetAccessToken(ctx)
		assert.ErrorIs(t, err, marketplace.ErrAuthFailed)
	})
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func TestClient_FetchOrders(t *testing.T) {
	ctx := context.Background()
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("requests created-after window on the first page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "ATVPDKIKX0DER", q.Get("MarketplaceIds"))
			assert.Equal(t, "50", q.Get("MaxResultsPerPage"))
			assert.Equal(t, "2024-03-01T12:00:00Z", q.Get("CreatedAfter"))
			assert.Empty(t, q.Get("NextToken"))
			w.Write([]byte(`{"payload":{"Orders":[
				{"OrderItemId":"10001","AmazonOrderId":"114-001","ASIN":"B00X","SellerSKU":"SKU-1",
				 "OrderStatus":"Shipped","PurchaseDate":"2024-03-02T09:30:00Z",
				 "ItemPrice":{"CurrencyCode":"USD","Amount":"24.99"},
				 "QuantityOrdered":2,"TrackingNumber":"1Z1"}
			],"NextToken":"tok-2"}}`))
		}))
		defer srv.Close()

		client, limiter := newTestClient(t, srv.URL, "http://unused")
		page, err := client.FetchOrders(ctx, since, "")
		require.NoError(t, err)

		assert.True(t, page.HasMore)
		assert.Equal(t, "tok-2", page.NextToken)
		require.Len(t, page.Orders, 1)
		got := page.Orders[0]
		assert.Equal(t, "10001", got.ItemID)
		assert.Equal(t, "114-001", got.OrderID)
		assert.Equal(t, "Shipped", got.Status)
		assert.True(t, got.ListPrice.Equal(decimal.NewFromFloat(24.99)))
		assert.Equal(t, 2, got.QuantitySold)
		assert.Equal(t, "1Z1", got.TrackingNumber)
		assert.Equal(t, time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC), got.PurchaseDate)
		assert.Equal(t, int64(1), limiter.acquired.Load())
	})

	t.Run("forwards the pagination token on later pages", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "tok-2", q.Get("NextToken"))
			assert.Empty(t, q.Get("CreatedAfter"))
			w.Write([]byte(`{"payload":{"Orders":[],"NextToken":""}}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		page, err := client.FetchOrders(ctx, since, "tok-2")
		require.NoError(t, err)
		assert.False(t, page.HasMore)
		assert.Empty(t, page.Orders)
	})

	t.Run("maps HTTP 429 to the rate limit error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		_, err := client.FetchOrders(ctx, since, "")
		assert.ErrorIs(t, err, marketplace.ErrRateLimited)
	})

	t.Run("maps HTTP 401 to the auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		_, err := client.FetchOrders(ctx, since, "")
		assert.ErrorIs(t, err, marketplace.ErrAuthFailed)
	})

	t.Run("surfaces API-level errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":[{"code":"InvalidInput","message":"bad marketplace"}]}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		_, err := client.FetchOrders(ctx, since, "")
		assert.ErrorIs(t, err, marketplace.ErrFetchFailed)
		assert.Contains(t, err.Error(), "InvalidInput")
	})

	t.Run("sends the held access token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/token" {
				w.Write([]byte(`{"access_token":"Atza|fresh"}`))
				return
			}
			assert.Equal(t, "Atza|fresh", r.Header.Get("x-amz-access-token"))
			w.Write([]byte(`{"payload":{"Orders":[]}}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, srv.URL+"/token")
		_, err := client.GetAccessToken(ctx)
		require.NoError(t, err)
		_, err = client.FetchOrders(ctx, since, "")
		require.NoError(t, err)
	})
}

// ---------------------------------------------------------------------------
// Fees
// ---------------------------------------------------------------------------

func TestClient_EstimateFee(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the total fee estimate", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/products/fees/v0/items/B00X/feesEstimate", r.URL.Path)
			w.Write([]byte(`{"payload":{"FeesEstimateResult":{"Status":"Success",
				"FeesEstimate":{"TotalFeesEstimate":{"CurrencyCode":"USD","Amount":"4.57"}}}}}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		fee, err := client.EstimateFee(ctx, "B00X", decimal.NewFromFloat(24.99), "ATVPDKIKX0DER")
		require.NoError(t, err)
		assert.True(t, fee.Equal(decimal.NewFromFloat(4.57)))
	})

	t.Run("empty marketplace ID resolves to the configured one", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req feesEstimateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ATVPDKIKX0DER", req.FeesEstimateRequest.MarketplaceID)
			assert.Equal(t, "B00X", req.FeesEstimateRequest.Identifier)
			w.Write([]byte(`{"payload":{"FeesEstimateResult":{"Status":"Success",
				"FeesEstimate":{"TotalFeesEstimate":{"CurrencyCode":"USD","Amount":"4.57"}}}}}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		fee, err := client.EstimateFee(ctx, "B00X", decimal.NewFromFloat(24.99), "")
		require.NoError(t, err)
		assert.True(t, fee.Equal(decimal.NewFromFloat(4.57)))
	})

	t.Run("non-positive price short-circuits without any network call", func(t *testing.T) {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		client, limiter := newTestClient(t, srv.URL, "http://unused")
		for _, price := range []decimal.Decimal{decimal.Zero, decimal.NewFromFloat(-1.50)} {
			fee, err := client.EstimateFee(ctx, "B00X", price, "")
			require.NoError(t, err)
			assert.True(t, fee.IsZero())
		}
		assert.Equal(t, int64(0), calls.Load())
		assert.Equal(t, int64(0), limiter.acquired.Load())
	})

	t.Run("degrades to zero on upstream failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		fee, err := client.EstimateFee(ctx, "B00X", decimal.NewFromFloat(24.99), "")
		require.NoError(t, err)
		assert.True(t, fee.IsZero())
	})

	t.Run("degrades to zero when the result is missing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"payload":{"FeesEstimateResult":{"Status":"ClientError"}}}`))
		}))
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, "http://unused")
		fee, err := client.EstimateFee(ctx, "B00X", decimal.NewFromFloat(24.99), "")
		require.NoError(t, err)
		assert.True(t, fee.IsZero())
	})
}
