// Package core provides the API chassis for rewardbridge. It builds the chi
// router, applies the cross-cutting middleware (recovery, request ids,
// logging, CORS, compression, admin authentication) and renders the standard
// response envelopes. Domain handlers attach themselves through route
// registrars so core never imports them.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/crypto/bcrypt"

	"rewardbridge/internal/config"
)

// RouteRegistrar mounts a group of routes on a router.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the HTTP dependencies so tests can build one with only
// what they need.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are checked concurrently by GET /health, keyed by
	// component name.
	HealthProbes map[string]HealthProbe

	// AdminKeyHash is the bcrypt hash admin requests are checked against.
	// A nil hash disables admin authentication (local development only).
	AdminKeyHash []byte

	// PublicRouteRegistrars mount unauthenticated /v1 routes (webhooks).
	PublicRouteRegistrars []RouteRegistrar
	// V1RouteRegistrars mount admin-authenticated /v1 routes.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the critical configuration and prepares an empty
// router. Callers add registrars and then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	hash, err := adminKeyHash(cfg.Security)
	if err != nil {
		return nil, err
	}
	if hash == nil && cfg.Environment != "local" {
		return nil, fmt.Errorf("ADMIN_API_KEY_HASH or ADMIN_API_KEY is required outside local")
	}

	return &Server{
		Config:       cfg,
		Logger:       logger,
		Validator:    NewValidator(logger),
		HealthProbes: make(map[string]HealthProbe),
		AdminKeyHash: hash,
		router:       chi.NewRouter(),
	}, nil
}

// adminKeyHash prefers a configured bcrypt hash and otherwise hashes the
// plain key once at startup.
func adminKeyHash(sec config.SecurityConfig) ([]byte, error) {
	if sec.AdminAPIKeyHash.IsSet() {
		h := []byte(sec.AdminAPIKeyHash.Unmask())
		if _, err := bcrypt.Cost(h); err != nil {
			return nil, fmt.Errorf("ADMIN_API_KEY_HASH is not a bcrypt hash: %w", err)
		}
		return h, nil
	}
	if sec.AdminAPIKey.IsSet() {
		h, err := bcrypt.GenerateFromPassword([]byte(sec.AdminAPIKey.Unmask()), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing admin api key: %w", err)
		}
		return h, nil
	}
	return nil, nil
}

// Handler returns the router wrapped with gzip response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe runs an http.Server on the configured port until ctx is
// cancelled, then drains in-flight requests within the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.Config.Server.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("server shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
