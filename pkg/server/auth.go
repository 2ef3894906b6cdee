package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/genesismon/genesismon/pkg/log"
	"github.com/google/uuid"
)

// authMiddleware tags every request with an ID for log correlation and,
// when an OIDC audience is configured, requires a valid Google ID token as
// a bearer token. Without an audience the API is open, which is the normal
// mode for a daemon bound to localhost.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqID := uuid.NewString()
		ctx = context.WithValue(ctx, requestIDContextKey, reqID)
		ctx = log.WithAttrs(ctx,
			slog.String("reqID", reqID),
			slog.String("reqPath", r.URL.Path))

		if s.bypassAuth {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		idToken, err := s.oidcVerifier(ctx, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx = log.WithAttrs(ctx, slog.String("subject", idToken.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
