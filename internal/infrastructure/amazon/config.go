package amazon

import (
	"context"
	"errors"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
)

const (
	// ProductionAPIURL is the North America selling-partner API endpoint
	ProductionAPIURL = "https://sellingpartnerapi-na.amazon.com"
	// SandboxAPIURL is the sandbox selling-partner API endpoint
	SandboxAPIURL = "https://sandbox.sellingpartnerapi-na.amazon.com"
	// TokenEndpointURL is the LWA token exchange endpoint
	TokenEndpointURL = "https://api.amazon.com/auth/o2/token"
)

// Errors for Amazon configuration
var (
	ErrConfigMissingClientID      = errors.New("amazon: client ID is required")
	ErrConfigMissingClientSecret  = errors.New("amazon: client secret is required")
	ErrConfigMissingRefreshToken  = errors.New("amazon: refresh token is required")
	ErrConfigMissingMarketplaceID = errors.New("amazon: marketplace ID is required")
)

// Config holds configuration for the Amazon selling-partner API integration
type Config struct {
	// ClientID is the LWA application client ID
	ClientID string
	// ClientSecret is the LWA application client secret
	ClientSecret string
	// RefreshToken is the long-lived LWA refresh token
	RefreshToken string
	// MarketplaceID identifies the marketplace region (e.g. ATVPDKIKX0DER)
	MarketplaceID string
	// APIBaseURL is the base URL for the selling-partner API
	APIBaseURL string
	// TokenURL is the LWA token exchange endpoint
	TokenURL string
	// IsSandbox indicates if this is a sandbox environment
	IsSandbox bool
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// PageSize is the maximum number of orders requested per page
	PageSize int
}

// NewConfig creates a new Amazon configuration with defaults
func NewConfig(clientID, clientSecret, refreshToken, marketplaceID string) *Config {
	return &Config{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		RefreshToken:   refreshToken,
		MarketplaceID:  marketplaceID,
		APIBaseURL:     ProductionAPIURL,
		TokenURL:       TokenEndpointURL,
		IsSandbox:      false,
		TimeoutSeconds: 30,
		PageSize:       100,
	}
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrConfigMissingClientSecret
	}
	if c.RefreshToken == "" {
		return ErrConfigMissingRefreshToken
	}
	if c.MarketplaceID == "" {
		return ErrConfigMissingMarketplaceID
	}
	if c.APIBaseURL == "" {
		if c.IsSandbox {
			c.APIBaseURL = SandboxAPIURL
		} else {
			c.APIBaseURL = ProductionAPIURL
		}
	}
	if c.TokenURL == "" {
		c.TokenURL = TokenEndpointURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	return nil
}

// Credential returns the credential set held by this configuration.
func (c *Config) Credential() *marketplace.Credential {
	return &marketplace.Credential{
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		RefreshToken:  c.RefreshToken,
		MarketplaceID: c.MarketplaceID,
	}
}

// StaticCredentialProvider resolves the single active credential set from
// configuration. Multi-tenant credential management is out of scope; one
// credential set per process is the supported deployment shape.
type StaticCredentialProvider struct {
	credential *marketplace.Credential
}

// NewStaticCredentialProvider creates a provider backed by the given config.
// A nil config yields a provider that reports no credential.
func NewStaticCredentialProvider(config *Config) *StaticCredentialProvider {
	if config == nil {
		return &StaticCredentialProvider{}
	}
	return &StaticCredentialProvider{credential: config.Credential()}
}

// ActiveCredential returns the configured credential set.
func (p *StaticCredentialProvider) ActiveCredential(_ context.Context) (*marketplace.Credential, error) {
	if p.credential == nil || p.credential.RefreshToken == "" {
		return nil, marketplace.ErrCredentialNotFound
	}
	return p.credential, nil
}

// Ensure StaticCredentialProvider implements CredentialProvider
var _ marketplace.CredentialProvider = (*StaticCredentialProvider)(nil)
