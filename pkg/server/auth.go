package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/powerstats/pkg/log"
)

// authMiddleware requires a valid bearer ID token when an OIDC audience is
// configured and passes everything through otherwise.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.tokenVerifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Ctx(ctx).WarnContext(ctx, "missing auth header")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}

		idToken, err := s.tokenVerifier(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
			return
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to read token claims", slog.Any("error", err))
			writeJSONError(w, "invalid oidc claims", http.StatusUnauthorized)
			return
		}

		ctx = log.WithAttrs(ctx, slog.String("authSubject", idToken.Subject))
		log.Ctx(ctx).DebugContext(ctx, "authenticated request", slog.String("email", claims.Email))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
