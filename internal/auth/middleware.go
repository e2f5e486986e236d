package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/finpilot/finpilot/internal/platform/httpx"
	"github.com/finpilot/finpilot/internal/shared"
)

// Middleware rejects requests without a valid bearer token and stores the
// token's user ID in the request context.
func Middleware(issuer *Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			claims, err := issuer.Parse(raw)
			if err != nil {
				if logger != nil {
					logger.Debug("reject bearer token", slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			ctx := shared.ContextWithUser(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
