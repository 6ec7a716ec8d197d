package amazon

// tokenResponse is the LWA token endpoint response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// ordersResponse is the orders listing endpoint response
type ordersResponse struct {
	Payload *ordersPayload `json:"payload"`
	Errors  []apiError     `json:"errors"`
}

type ordersPayload struct {
	Orders    []orderRecord `json:"Orders"`
	NextToken string        `json:"NextToken"`
}

// orderRecord is one order line item as returned by the orders endpoint
type orderRecord struct {
	OrderItemID     string      `json:"OrderItemId"`
	AmazonOrderID   string      `json:"AmazonOrderId"`
	ASIN            string      `json:"ASIN"`
	SellerSKU       string      `json:"SellerSKU"`
	OrderStatus     string      `json:"OrderStatus"`
	PurchaseDate    string      `json:"PurchaseDate"`
	ItemPrice       moneyAmount `json:"ItemPrice"`
	QuantityShipped int         `json:"QuantityShipped"`
	QuantityOrdered int         `json:"QuantityOrdered"`
	TrackingNumber  string      `json:"TrackingNumber"`
}

type moneyAmount struct {
	CurrencyCode string `json:"CurrencyCode"`
	Amount       string `json:"Amount"`
}

// feesEstimateRequest is the body of a fee estimate call
type feesEstimateRequest struct {
	FeesEstimateRequest feesEstimateBody `json:"FeesEstimateRequest"`
}

type feesEstimateBody struct {
	MarketplaceID       string          `json:"MarketplaceId"`
	Identifier          string          `json:"Identifier"`
	IsAmazonFulfilled   bool            `json:"IsAmazonFulfilled"`
	PriceToEstimateFees priceToEstimate `json:"PriceToEstimateFees"`
}

type priceToEstimate struct {
	ListingPrice moneyAmount `json:"ListingPrice"`
}

// feesEstimateResponse is the fee estimate endpoint response
type feesEstimateResponse struct {
	Payload *feesEstimatePayload `json:"payload"`
	Errors  []apiError           `json:"errors"`
}

type feesEstimatePayload struct {
	FeesEstimateResult *feesEstimateResult `json:"FeesEstimateResult"`
}

type feesEstimateResult struct {
	Status       string        `json:"Status"`
	FeesEstimate *feesEstimate `json:"FeesEstimate"`
}

type feesEstimate struct {
	TotalFeesEstimate moneyAmount `json:"TotalFeesEstimate"`
}

// apiError is the common error shape of selling-partner API responses
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
