package core

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"rewardbridge/internal/config"
	"rewardbridge/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, adminKey string) *Server {
	t.Helper()
	cfg := &config.Config{Environment: "local"}
	cfg.Server.RequestTimeout = 5 * time.Second
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if adminKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		srv.AdminKeyHash = hash
	}
	return srv
}

func decodeEnvelope(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestNewServer_RequiresAdminKeyOutsideLocal(t *testing.T) {
	cfg := &config.Config{Environment: "prod"}
	if _, err := NewServer(cfg, testLogger()); err == nil {
		t.Fatal("expected error without admin key in prod")
	}

	cfg.Security.AdminAPIKey = "s3cret"
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bcrypt.CompareHashAndPassword(srv.AdminKeyHash, []byte("s3cret")) != nil {
		t.Error("plain key should be hashed at startup")
	}

	cfg.Security.AdminAPIKeyHash = "not-a-hash"
	if _, err := NewServer(cfg, testLogger()); err == nil {
		t.Error("expected error for malformed hash")
	}
}

func TestRoutes_AdminAuth(t *testing.T) {
	srv := newTestServer(t, "letmein")
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			actor, _ := types.GetActor(r.Context())
			OK(w, r, http.StatusOK, map[string]string{"actor": string(actor.Type)})
		})
	})
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars, func(r chi.Router) {
		r.Post("/webhooks/test", func(w http.ResponseWriter, r *http.Request) {
			OK(w, r, http.StatusOK, nil)
		})
	})
	srv.MountRoutes()
	h := srv.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
		code   string
	}{
		{"missing key", http.MethodGet, "/v1/ping", nil, http.StatusUnauthorized, "auth_token_missing"},
		{"wrong key", http.MethodGet, "/v1/ping", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, "auth_token_invalid"},
		{"bearer", http.MethodGet, "/v1/ping", map[string]string{"Authorization": "bearer letmein"}, http.StatusOK, ""},
		{"x-api-key", http.MethodGet, "/v1/ping", map[string]string{"X-API-Key": "letmein"}, http.StatusOK, ""},
		{"public webhook", http.MethodPost, "/v1/webhooks/test", nil, http.StatusOK, ""},
		{"health is public", http.MethodGet, "/health", nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Error("missing X-Request-Id")
			}
			if tt.code != "" {
				env := decodeEnvelope(t, rec.Body)
				if env["success"] != false {
					t.Errorf("success = %v", env["success"])
				}
				if got := env["error"].(map[string]any)["code"]; got != tt.code {
					t.Errorf("code = %v, want %s", got, tt.code)
				}
			}
		})
	}
}

func TestRoutes_LocalWithoutKeyIsOpen(t *testing.T) {
	srv := newTestServer(t, "")
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) { OK(w, r, http.StatusOK, "pong") })
	})
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRoutes_RecovererAndGzip(t *testing.T) {
	srv := newTestServer(t, "")
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
		r.Get("/big", func(w http.ResponseWriter, r *http.Request) {
			OK(w, r, http.StatusOK, strings.Repeat("reward ", 500))
		})
	})
	srv.MountRoutes()
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body)
	if env["error"].(map[string]any)["code"] != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected body %v", env)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, headers %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if env := decodeEnvelope(t, zr); env["success"] != true {
		t.Errorf("unexpected body %v", env)
	}
}

func TestRequestIDMiddleware_Propagates(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-123" || rec.Header().Get("X-Request-Id") != "req-123" {
		t.Errorf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get("X-Request-Id"))
	}
}

func TestRequestLogger_RedactsHeaders(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := RequestLogger(logger, defaultRedactedHeaders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/board", nil)
	req.Header.Set("X-Monday-Signature", "abcdef0123")
	req.Header.Set("Authorization", "Bearer topsecret")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "topsecret") || strings.Contains(out, "abcdef0123") {
		t.Errorf("secret header leaked: %s", out)
	}
	if !strings.Contains(out, "status=418") || !strings.Contains(out, "[REDACTED]") {
		t.Errorf("unexpected log line: %s", out)
	}
}

// --- health ---

type probeFunc func(ctx context.Context) error

func (f probeFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHandleHealth(t *testing.T) {
	healthy := probeFunc(func(context.Context) error { return nil })

	t.Run("all healthy", func(t *testing.T) {
		srv := newTestServer(t, "")
		srv.HealthProbes = map[string]HealthProbe{"board": healthy, "giftcard": healthy}
		rec := httptest.NewRecorder()
		srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp healthResponse
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Status != "healthy" || len(resp.Components) != 2 {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("one failing", func(t *testing.T) {
		srv := newTestServer(t, "")
		srv.HealthProbes = map[string]HealthProbe{
			"board":    healthy,
			"giftcard": probeFunc(func(context.Context) error { return errors.New("503 from provider") }),
		}
		rec := httptest.NewRecorder()
		srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp healthResponse
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Components["giftcard"].Message != "503 from provider" || resp.Components["board"].Status != "healthy" {
			t.Errorf("unexpected components %+v", resp.Components)
		}
	})

	t.Run("panicking probe", func(t *testing.T) {
		srv := newTestServer(t, "")
		srv.HealthProbes = map[string]HealthProbe{"board": probeFunc(func(context.Context) error { panic("nil client") })}
		rec := httptest.NewRecorder()
		srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("no probes", func(t *testing.T) {
		srv := newTestServer(t, "")
		rec := httptest.NewRecorder()
		srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

// --- responses ---

func TestError_MapsAppErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{types.NewAppError(types.ErrCodeNotFoundRewardItem, "item 9 not found", nil), http.StatusNotFound, "not_found_reward_item"},
		{types.NewAppError(types.ErrCodeConflictAlreadyDecided, "already approved", nil), http.StatusConflict, "conflict_approval_already_decided"},
		{types.NewAppError(types.ErrCodeUpstreamGiftCard, "provider down", nil), http.StatusBadGateway, "upstream_giftcard_unavailable"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_unexpected_error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		Error(rec, req, tt.err)

		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
		env := decodeEnvelope(t, rec.Body)
		detail := env["error"].(map[string]any)
		if detail["code"] != tt.code {
			t.Errorf("%v: code = %v", tt.err, detail["code"])
		}
		if strings.Contains(rec.Body.String(), "pq:") {
			t.Error("internal error text leaked")
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"name":"Ana"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"nom":"Ana"}`, true},
		{"syntax", `{"name":`, true},
		{"wrong type", `{"name":3}`, true},
		{"two objects", `{"name":"a"}{"name":"b"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var dst body
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var appErr *types.AppError
				if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidPayload {
					t.Errorf("unexpected error %v", err)
				}
			}
		})
	}
}

// --- validator ---

func TestValidator_ValidateStruct(t *testing.T) {
	type req struct {
		Name     string `json:"employee_name" validate:"required"`
		Email    string `json:"employee_email" validate:"required,email"`
		Decision string `json:"decision" validate:"omitempty,oneof=Approved Rejected"`
	}
	v := NewValidator(testLogger())

	if err := v.ValidateStruct(req{Name: "Ana", Email: "ana@example.com"}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	err := v.ValidateStruct(req{Email: "nope", Decision: "Maybe"})
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("code = %s", appErr.Code)
	}
	fields := appErr.Details["fields"].([]ValidationError)
	if len(fields) != 3 || fields[0].Field != "employee_name" {
		t.Errorf("fields = %+v", fields)
	}

	err = v.ValidateStruct(req{Name: "Ana", Email: "bad"})
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidPayload {
		t.Errorf("expected invalid payload, got %v", err)
	}
}
