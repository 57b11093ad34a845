package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

const (
	giftCardAPIBase  = "https://api-stage.ugift.me/api/v1"
	productPageLimit = 100
	maxProductPages  = 50
)

// Provider error codes returned in the "error" field of gift-card API
// failures.
const (
	CodeProductNotFound       = "PRODUCT_NOT_FOUND"
	CodeMerchantNotFound      = "MERCHANT_NOT_FOUND"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeOrderNotFound         = "ORDER_NOT_FOUND"
	CodeOrderNotPaidFor       = "ORDER_NOT_PAID_FOR"
	CodeOrderAlreadyActivated = "ORDER_ALREADY_ACTIVATED"
)

var providerMessages = map[string]string{
	CodeProductNotFound:       "Product not found",
	CodeMerchantNotFound:      "Merchant not found",
	CodeUserNotFound:          "User not found",
	CodeOrderNotFound:         "Order not found or access denied",
	CodeOrderNotPaidFor:       "Order has not been paid for yet",
	CodeOrderAlreadyActivated: "Order has already been activated",
}

// ProviderError is a failure reported by the gift-card provider itself, as
// opposed to a transport failure. Its message always carries the code.
type ProviderError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes an AppError so the API layer maps provider failures onto
// HTTP statuses without knowing about ProviderError.
func (e *ProviderError) Unwrap() error {
	code := types.ErrCodeUpstreamGiftCardRejected
	switch e.Code {
	case CodeProductNotFound, CodeMerchantNotFound:
		code = types.ErrCodeNotFoundProduct
	case CodeOrderNotFound:
		code = types.ErrCodeNotFoundOrder
	}
	return types.NewAppError(code, e.Error(), nil)
}

func newProviderError(code, message string, status int) *ProviderError {
	if known, ok := providerMessages[code]; ok && message == "" {
		message = known
	}
	return &ProviderError{Code: code, Message: message, StatusCode: status}
}

// Product is a purchasable gift-card product.
type Product struct {
	Code         string          `json:"code"`
	Name         string          `json:"name,omitempty"`
	Merchant     string          `json:"merchant"`
	Currency     string          `json:"currency,omitempty"`
	Value        decimal.Decimal `json:"value"`
	DisplayValue decimal.Decimal `json:"displayValue"`
}

// Matches reports whether the product's face value equals amount.
func (p Product) Matches(amount decimal.Decimal) bool {
	return p.Value.Equal(amount) || p.DisplayValue.Equal(amount)
}

// OrderRequest is the body of a create-order call.
type OrderRequest struct {
	ProductCode    string          `json:"productCode" validate:"required"`
	Merchant       string          `json:"merchant" validate:"required"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	ValuePurchased decimal.Decimal `json:"valuePurchased"`
	RecipientEmail string          `json:"recipientEmail,omitempty" validate:"omitempty,email"`
	RecipientName  string          `json:"recipientName,omitempty"`
	Message        string          `json:"message,omitempty"`
	EmployeeName   string          `json:"employeeName,omitempty"`
	MilestoneType  string          `json:"milestoneType,omitempty"`
	OrderReference string          `json:"orderReference,omitempty"`
}

// ActivationData is the body of an activate-order call.
type ActivationData struct {
	EmployeeName string `json:"employeeName,omitempty"`
}

// Order is the provider's view of an order, normalized across the id and
// merchant shapes the API returns.
type Order struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Merchant       string          `json:"merchant"`
	Currency       string          `json:"currency,omitempty"`
	GiftCardCode   string          `json:"gift_card_code,omitempty"`
	VoucherCode    string          `json:"voucher_code,omitempty"`
	ValuePurchased decimal.Decimal `json:"value_purchased"`
	AmountUsed     decimal.Decimal `json:"amount_used"`
}

// Activation is the result of activating an order.
type Activation struct {
	Order Order `json:"order"`
}

// Wallet is the business account balance.
type Wallet struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type wireMerchant struct {
	Name        string `json:"name"`
	VoucherCode string `json:"voucherCode"`
}

// UnmarshalJSON accepts both a bare merchant name and a merchant object.
func (m *wireMerchant) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &m.Name)
	}
	type plain wireMerchant
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = wireMerchant(p)
	return nil
}

type wireOrder struct {
	ID             string              `json:"id"`
	MongoID        string              `json:"_id"`
	Status         string              `json:"status"`
	Currency       string              `json:"currency"`
	GiftCardCode   string              `json:"giftCardCode"`
	Merchant       wireMerchant        `json:"merchant"`
	ValuePurchased decimal.NullDecimal `json:"valuePurchased"`
	AmountUsed     decimal.NullDecimal `json:"amountUsed"`
}

func (w wireOrder) order() Order {
	o := Order{
		ID:           w.ID,
		Status:       w.Status,
		Merchant:     w.Merchant.Name,
		Currency:     w.Currency,
		GiftCardCode: w.GiftCardCode,
		VoucherCode:  w.Merchant.VoucherCode,
	}
	if o.ID == "" {
		o.ID = w.MongoID
	}
	if w.ValuePurchased.Valid {
		o.ValuePurchased = w.ValuePurchased.Decimal
	}
	if w.AmountUsed.Valid {
		o.AmountUsed = w.AmountUsed.Decimal
	}
	return o
}

type productsPage struct {
	Products   []wireProduct `json:"products"`
	Pagination struct {
		Page       int `json:"page"`
		TotalPages int `json:"totalPages"`
		Total      int `json:"total"`
	} `json:"pagination"`
}

type wireProduct struct {
	Code         string              `json:"code"`
	ProductCode  string              `json:"productCode"`
	Name         string              `json:"name"`
	Merchant     wireMerchant        `json:"merchant"`
	Currency     string              `json:"currency"`
	Value        decimal.NullDecimal `json:"value"`
	DisplayValue decimal.NullDecimal `json:"displayValue"`
}

func (w wireProduct) product() Product {
	p := Product{
		Code:     w.Code,
		Name:     w.Name,
		Merchant: w.Merchant.Name,
		Currency: w.Currency,
	}
	if p.Code == "" {
		p.Code = w.ProductCode
	}
	if w.Value.Valid {
		p.Value = w.Value.Decimal
	}
	if w.DisplayValue.Valid {
		p.DisplayValue = w.DisplayValue.Decimal
	}
	return p
}

// GiftCardClientConfig configures the gift-card provider client.
type GiftCardClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// GiftCardClient implements GiftCardProvider against the UGiftMe business
// REST API.
type GiftCardClient struct {
	base     *BaseClient
	apiKey   string
	baseURL  string
	logger   *slog.Logger
	validate *validator.Validate
}

// NewGiftCardClient creates a GiftCardClient. httpClient.Timeout bounds each
// call.
func NewGiftCardClient(httpClient *http.Client, cfg GiftCardClientConfig) *GiftCardClient {
	base := NewBaseClient(httpClient, "ugiftme", DefaultRetryPolicy(), WithUpstreamCode(types.ErrCodeUpstreamGiftCard))
	return NewGiftCardClientWithBase(base, cfg)
}

// NewGiftCardClientWithBase creates a GiftCardClient around an existing
// BaseClient.
func NewGiftCardClientWithBase(base *BaseClient, cfg GiftCardClientConfig) *GiftCardClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = giftCardAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GiftCardClient{
		base:     base,
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger,
		validate: validator.New(),
	}
}

// SearchProducts returns the products of merchant. An empty result is not an
// error.
func (c *GiftCardClient) SearchProducts(ctx context.Context, merchant string) ([]Product, error) {
	q := url.Values{"merchant": {merchant}}
	var page productsPage
	if err := c.call(ctx, "search products", http.MethodGet, "/business/products/search?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "gift card products searched",
		"merchant", merchant,
		"results", len(page.Products),
		"total", page.Pagination.Total,
	)
	return toProducts(page.Products), nil
}

// ListProducts walks every page of the product listing.
func (c *GiftCardClient) ListProducts(ctx context.Context) ([]Product, error) {
	var all []Product
	for p := 1; p <= maxProductPages; p++ {
		q := url.Values{"page": {strconv.Itoa(p)}, "limit": {strconv.Itoa(productPageLimit)}}
		var page productsPage
		if err := c.call(ctx, "fetch all products", http.MethodGet, "/business/products?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, toProducts(page.Products)...)
		if len(page.Products) < productPageLimit || (page.Pagination.TotalPages > 0 && p >= page.Pagination.TotalPages) {
			break
		}
	}
	return all, nil
}

// CreateOrder places a gift-card order.
func (c *GiftCardClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "invalid gift card order", err)
	}
	if !req.ValuePurchased.IsPositive() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidAmount,
			fmt.Sprintf("order value must be positive, got %s", req.ValuePurchased), nil)
	}

	var w wireOrder
	if err := c.call(withoutRetry(ctx), "create order", http.MethodPost, "/business/orders", req, &w); err != nil {
		c.logger.ErrorContext(ctx, "gift card order creation failed",
			"product_code", req.ProductCode,
			"order_reference", req.OrderReference,
			"error", err,
		)
		return nil, err
	}
	order := w.order()
	if order.ID == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamGiftCard, "create order response carried no order id", nil)
	}
	c.logger.InfoContext(ctx, "gift card order created",
		"order_id", order.ID,
		"status", order.Status,
		"merchant", order.Merchant,
		"value", req.ValuePurchased.String(),
	)
	return &order, nil
}

// ActivateOrder activates a paid order and returns the voucher details.
func (c *GiftCardClient) ActivateOrder(ctx context.Context, orderID string, data ActivationData) (*Activation, error) {
	var out struct {
		Order *wireOrder `json:"order"`
	}
	if err := c.call(withoutRetry(ctx), "activate order", http.MethodPost, "/business/orders/"+url.PathEscape(orderID)+"/activate", data, &out); err != nil {
		return nil, err
	}
	act := &Activation{}
	if out.Order != nil {
		act.Order = out.Order.order()
	}
	if act.Order.ID == "" {
		act.Order.ID = orderID
	}
	c.logger.InfoContext(ctx, "gift card order activated", "order_id", orderID)
	return act, nil
}

// GetOrder fetches an order, including how much of it has been spent.
func (c *GiftCardClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var w wireOrder
	if err := c.call(ctx, "fetch order", http.MethodGet, "/business/orders/"+url.PathEscape(orderID), nil, &w); err != nil {
		return nil, err
	}
	order := w.order()
	if order.ID == "" {
		order.ID = orderID
	}
	return &order, nil
}

// GetWallet returns the account balance. Health checks use it as a probe.
func (c *GiftCardClient) GetWallet(ctx context.Context) (*Wallet, error) {
	var w struct {
		Balance  decimal.NullDecimal `json:"balance"`
		Currency string              `json:"currency"`
	}
	if err := c.call(ctx, "fetch wallet", http.MethodGet, "/business/wallet", nil, &w); err != nil {
		return nil, err
	}
	wallet := &Wallet{Currency: w.Currency}
	if w.Balance.Valid {
		wallet.Balance = w.Balance.Decimal
	}
	return wallet, nil
}

// Ping implements the health probe.
func (c *GiftCardClient) Ping(ctx context.Context) error {
	if c.apiKey == "" {
		return types.NewAppError(types.ErrCodeUpstreamGiftCard, "gift card API key not configured", nil)
	}
	_, err := c.GetWallet(ctx)
	return err
}

type providerErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// call performs one request and decodes a 2xx body into out. Non-2xx bodies
// of the form {"error": CODE, "message": ...} become *ProviderError.
func (c *GiftCardClient) call(ctx context.Context, op, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode gift card request", err)
		}
		body = bytes.NewReader(b)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create gift card request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "gift card API request", "operation", op, "method", method, "path", path)

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "gift card API network error", "operation", op, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw := readErrorBody(resp)
		var pe providerErrorBody
		_ = json.Unmarshal([]byte(raw), &pe)
		c.logger.ErrorContext(ctx, "gift card API error",
			"operation", op,
			"status_code", resp.StatusCode,
			"error_code", pe.Error,
			"message", pe.Message,
		)
		if pe.Error != "" {
			return newProviderError(pe.Error, pe.Message, resp.StatusCode)
		}
		msg := pe.Message
		if msg == "" {
			msg = fmt.Sprintf("failed to %s", op)
		}
		return types.NewAppError(types.ErrCodeUpstreamGiftCardRejected,
			fmt.Sprintf("%s (status %d)", msg, resp.StatusCode), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamGiftCard, fmt.Sprintf("%s: malformed response", op), err)
	}
	return nil
}

func toProducts(in []wireProduct) []Product {
	out := make([]Product, 0, len(in))
	for _, w := range in {
		out = append(out, w.product())
	}
	return out
}

var _ GiftCardProvider = (*GiftCardClient)(nil)
