package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
	"github.com/rolodex-app/rolodex/internal/shared"
)

// Middleware guards routes behind bearer token verification.
type Middleware struct {
	logger *slog.Logger
	tokens *TokenService
}

// NewMiddleware constructs the middleware.
func NewMiddleware(logger *slog.Logger, tokens *TokenService) *Middleware {
	return &Middleware{logger: logger, tokens: tokens}
}

// RequireAuth verifies the Authorization header and injects the resulting
// principal into the request context. The response is the same 401 whether
// the credential is missing, malformed, expired or forged; the specific
// reason only reaches the debug log.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		claims, err := m.tokens.Verify(raw)
		if err != nil {
			m.logger.Debug("bearer token rejected", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			m.logger.Debug("token claims unusable", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", httpx.ErrUnauthenticated)
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("%w: authorization header is not a bearer token", httpx.ErrUnauthenticated)
	}
	return token, nil
}
