package external

import (
	"context"
	"log/slog"
	"net/http"

	"rewardbridge/internal/board"
	"rewardbridge/internal/config"
)

// ClientRegistry holds every outbound client. It is the single point where
// the rest of the application obtains vendor access.
type ClientRegistry struct {
	Board     board.Gateway
	GiftCards GiftCardProvider
	Email     EmailProvider

	// Probes are the dependencies the health endpoint checks, by name.
	Probes map[string]Pinger

	// Stub is true when the registry was built from in-process fakes.
	Stub bool
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewClientRegistry builds the clients for cfg. In test mode, or locally
// without a board token, the board is an in-memory store and the gift-card
// and email providers are stubs.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.UsesStubs() {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger), nil
	}

	logger.Info("initializing external clients in PRODUCTION mode", "environment", cfg.Environment)
	return newProductionRegistry(cfg, logger), nil
}

func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")
	gifts := NewStubGiftCardProvider(stubLogger)
	ok := PingFunc(func(context.Context) error { return nil })
	return &ClientRegistry{
		Board:     board.NewMemoryGateway(),
		GiftCards: gifts,
		Email:     NewStubEmailProvider(stubLogger),
		Probes:    map[string]Pinger{"board": ok, "giftcard": gifts},
		Stub:      true,
	}
}

func newProductionRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	boardClient := NewBoardClient(&http.Client{Timeout: cfg.Board.Timeout}, BoardClientConfig{
		APIToken:   cfg.Board.APIToken.Unmask(),
		APIURL:     cfg.Board.APIURL,
		APIVersion: cfg.Board.APIVersion,
		PageSize:   cfg.Board.PageSize,
		Logger:     logger.With("client", "monday"),
	})

	giftClient := NewGiftCardClient(&http.Client{Timeout: cfg.GiftCard.Timeout}, GiftCardClientConfig{
		APIKey:  cfg.GiftCard.APIKey.Unmask(),
		BaseURL: cfg.GiftCard.BaseURL,
		Logger:  logger.With("client", "ugiftme"),
	})

	reg := &ClientRegistry{
		Board:     boardClient,
		GiftCards: giftClient,
		Probes:    map[string]Pinger{"board": boardClient, "giftcard": giftClient},
	}

	if cfg.Email.SendGridAPIKey.IsSet() {
		reg.Email = NewSendGridClient(&http.Client{Timeout: cfg.GiftCard.Timeout}, SendGridClientConfig{
			APIKey:      cfg.Email.SendGridAPIKey.Unmask(),
			BaseURL:     cfg.Email.BaseURL,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Logger:      logger.With("client", "sendgrid"),
		})
	} else {
		logger.Warn("SENDGRID_API_KEY not set, email notifications are logged only")
		reg.Email = NewStubEmailProvider(logger.With("client", "email-log"))
	}
	return reg
}
