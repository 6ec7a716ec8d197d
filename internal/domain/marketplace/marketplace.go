package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Marketplace Errors
// ---------------------------------------------------------------------------

var (
	// Auth errors (fatal for the current sync cycle)
	ErrCredentialNotFound = errors.New("marketplace: no active credential configured")
	ErrAuthFailed         = errors.New("marketplace: authentication failed")

	// Fetch errors (fatal for the current sync cycle)
	ErrFetchFailed     = errors.New("marketplace: order fetch failed")
	ErrInvalidResponse = errors.New("marketplace: invalid response")
	ErrRateLimited     = errors.New("marketplace: request was throttled")

	// Recoverable per-item errors
	ErrFeeEstimateFailed    = errors.New("marketplace: fee estimate failed")
	ErrTrackingUpdateFailed = errors.New("marketplace: tracking update failed")
)

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// PlatformOrder represents one order line item as observed from the
// marketplace feed, before it is merged into the locally stored order.
type PlatformOrder struct {
	// ItemID is the marketplace's unique line-item identifier
	ItemID string
	// OrderID is the marketplace order this item belongs to
	OrderID string
	// ASIN is the marketplace catalog identifier of the listed product
	ASIN string
	// SKU is the seller's stock keeping unit
	SKU string
	// Status is the raw order status string as reported by the marketplace
	Status string
	// PurchaseDate is when the order was placed
	PurchaseDate time.Time
	// ListPrice is the per-line selling price
	ListPrice decimal.Decimal
	// QuantitySold is the ordered quantity (0 when the feed omits it)
	QuantitySold int
	// TrackingNumber is the shipment tracking number, if assigned
	TrackingNumber string
}

// OrderPage is one page of a paginated order fetch. Callers must not rely on
// the ordering of Orders; the upstream API does not guarantee one.
type OrderPage struct {
	// Orders contains the raw order records of this page
	Orders []PlatformOrder
	// NextToken continues the fetch; empty when this is the last page
	NextToken string
	// HasMore indicates whether another page should be requested
	HasMore bool
}

// Credential is one set of marketplace API credentials. Exactly one active
// set is resolvable per process.
type Credential struct {
	// ClientID is the application client ID issued by the marketplace
	ClientID string
	// ClientSecret is the application client secret
	ClientSecret string
	// RefreshToken is the long-lived token exchanged for access tokens
	RefreshToken string
	// MarketplaceID identifies the marketplace region for fee estimates
	MarketplaceID string
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Client defines the port for the external selling-partner API. Concrete
// adapters live in the infrastructure layer and are responsible for rate
// limiting every outbound call.
type Client interface {
	// GetAccessToken exchanges the stored refresh credential for a short-lived
	// access token and retains it for subsequent calls. Fails with
	// ErrCredentialNotFound or ErrAuthFailed; both abort the current cycle.
	// The token is treated as opaque and re-fetched once per cycle.
	GetAccessToken(ctx context.Context) (string, error)

	// FetchOrders fetches one page of orders created after since. Pass the
	// NextToken of the previous page to continue; an empty token starts a
	// fresh fetch.
	FetchOrders(ctx context.Context, since time.Time, nextToken string) (*OrderPage, error)

	// EstimateFee returns the marketplace fee estimate for listing the given
	// ASIN at the given price. A price of zero or less short-circuits to zero
	// without a network call; an empty marketplaceID resolves to the adapter's
	// configured marketplace. Upstream failures degrade to zero with a logged
	// warning instead of returning an error; the error return is reserved for
	// context cancellation.
	EstimateFee(ctx context.Context, asin string, price decimal.Decimal, marketplaceID string) (decimal.Decimal, error)
}

// CredentialProvider resolves the active credential set for the process.
type CredentialProvider interface {
	// ActiveCredential returns the credential set to use, or
	// ErrCredentialNotFound when none is configured.
	ActiveCredential(ctx context.Context) (*Credential, error)
}
