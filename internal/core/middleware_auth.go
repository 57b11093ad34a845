package core

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"rewardbridge/internal/types"
)

// AdminAuth protects the admin API. The key is read from "Authorization:
// Bearer <key>" or "X-API-Key" and compared against Server.AdminKeyHash with
// bcrypt. Successful requests carry an admin Actor in their context.
// Verified keys are cached by SHA-256 digest for the life of the process.
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	var verified sync.Map

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKeyHash == nil {
			ctx := types.WithActor(r.Context(), types.Actor{ID: "local", Type: types.ActorTypeAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "an admin API key is required", nil))
			return
		}

		sum := sha256.Sum256([]byte(key))
		digest := hex.EncodeToString(sum[:])
		if _, ok := verified.Load(digest); !ok {
			if err := bcrypt.CompareHashAndPassword(s.AdminKeyHash, []byte(key)); err != nil {
				s.Logger.WarnContext(r.Context(), "admin authentication failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("client_ip", extractClientIP(r)),
				)
				Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid admin API key", nil))
				return
			}
			verified.Store(digest, struct{}{})
		}

		ctx := types.WithActor(r.Context(), types.Actor{ID: "admin:" + digest[:8], Type: types.ActorTypeAdmin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAPIKey prefers the Bearer token and falls back to X-API-Key.
func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return extractBearerToken(h)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// extractBearerToken parses "Bearer <token>" with a case-insensitive scheme.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
