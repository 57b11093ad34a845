package external

import (
	"context"
)

// GiftCardProvider abstracts the gift-card vendor. Implementations translate
// vendor failures into *ProviderError or *types.AppError.
type GiftCardProvider interface {
	// SearchProducts returns the products of one merchant. An empty list is
	// not an error.
	SearchProducts(ctx context.Context, merchant string) ([]Product, error)

	// ListProducts returns the whole catalog; used as the fallback search.
	ListProducts(ctx context.Context) ([]Product, error)

	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	ActivateOrder(ctx context.Context, orderID string, data ActivationData) (*Activation, error)

	// GetOrder returns status and redemption progress for an order.
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	GetWallet(ctx context.Context) (*Wallet, error)
}

// Email is a rendered plain-text message.
type Email struct {
	To          string
	ToName      string
	Subject     string
	Text        string
	Category    string
	ReferenceID string
}

// EmailProvider delivers rendered email.
type EmailProvider interface {
	// Send returns the provider's message id.
	Send(ctx context.Context, msg Email) (providerMsgID string, err error)
}

// Pinger is implemented by clients that can be probed by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}
