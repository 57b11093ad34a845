package external

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stub implementations let the service boot locally without vendor
// credentials. They log every call and return predictable values.

// StubGiftCardProvider keeps orders in memory and offers a small fixed
// catalog.
type StubGiftCardProvider struct {
	logger *slog.Logger

	mu       sync.Mutex
	products []Product
	orders   map[string]*Order
}

// NewStubGiftCardProvider creates a StubGiftCardProvider.
func NewStubGiftCardProvider(logger *slog.Logger) *StubGiftCardProvider {
	if logger == nil {
		logger = slog.Default()
	}
	var products []Product
	for _, merchant := range []string{"ASDA", "Boots", "Currys"} {
		for _, v := range []int64{2, 5, 10, 25, 50, 100} {
			amt := decimal.NewFromInt(v)
			products = append(products, Product{
				Code:         fmt.Sprintf("%s-GB-%d", strings.ToUpper(merchant), v),
				Name:         fmt.Sprintf("%s £%d", merchant, v),
				Merchant:     merchant,
				Currency:     "GBP",
				Value:        amt,
				DisplayValue: amt,
			})
		}
	}
	return &StubGiftCardProvider{
		logger:   logger,
		products: products,
		orders:   make(map[string]*Order),
	}
}

func (s *StubGiftCardProvider) SearchProducts(ctx context.Context, merchant string) ([]Product, error) {
	s.logger.InfoContext(ctx, "stub: SearchProducts called", "merchant", merchant)
	var out []Product
	for _, p := range s.products {
		if strings.EqualFold(p.Merchant, merchant) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *StubGiftCardProvider) ListProducts(ctx context.Context) ([]Product, error) {
	s.logger.InfoContext(ctx, "stub: ListProducts called")
	return append([]Product(nil), s.products...), nil
}

func (s *StubGiftCardProvider) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	s.logger.InfoContext(ctx, "stub: CreateOrder called",
		"product_code", req.ProductCode,
		"value", req.ValuePurchased.String(),
		"order_reference", req.OrderReference,
	)
	if !req.ValuePurchased.IsPositive() {
		return nil, newProviderError(CodeProductNotFound, "", 400)
	}
	id := "ord_stub_" + uuid.NewString()[:8]
	o := &Order{
		ID:             id,
		Status:         "paid",
		Merchant:       req.Merchant,
		Currency:       req.Currency,
		GiftCardCode:   "GC-" + strings.ToUpper(id[len(id)-8:]),
		ValuePurchased: req.ValuePurchased,
	}
	s.mu.Lock()
	s.orders[id] = o
	s.mu.Unlock()
	cp := *o
	return &cp, nil
}

func (s *StubGiftCardProvider) ActivateOrder(ctx context.Context, orderID string, data ActivationData) (*Activation, error) {
	s.logger.InfoContext(ctx, "stub: ActivateOrder called", "order_id", orderID, "employee", data.EmployeeName)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, newProviderError(CodeOrderNotFound, "", 404)
	}
	if o.Status == "activated" {
		return nil, newProviderError(CodeOrderAlreadyActivated, "", 409)
	}
	o.Status = "activated"
	o.VoucherCode = "STUB-" + strings.ToUpper(orderID[len(orderID)-8:])
	return &Activation{Order: *o}, nil
}

func (s *StubGiftCardProvider) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	s.logger.InfoContext(ctx, "stub: GetOrder called", "order_id", orderID)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, newProviderError(CodeOrderNotFound, "", 404)
	}
	cp := *o
	return &cp, nil
}

func (s *StubGiftCardProvider) GetWallet(ctx context.Context) (*Wallet, error) {
	s.logger.InfoContext(ctx, "stub: GetWallet called")
	return &Wallet{Balance: decimal.NewFromInt(10000), Currency: "GBP"}, nil
}

func (s *StubGiftCardProvider) Ping(context.Context) error { return nil }

// StubEmailProvider logs instead of sending.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, msg Email) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", msg.To,
		"subject", msg.Subject,
		"category", msg.Category,
	)
	return "msg_stub_" + msg.ReferenceID, nil
}

var (
	_ GiftCardProvider = (*StubGiftCardProvider)(nil)
	_ EmailProvider    = (*StubEmailProvider)(nil)
)
