package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/millflow-backend/api/responses"
	pkgAuth "github.com/angelmondragon/millflow-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

// TokenVerifier turns a bearer token into operator claims.
type TokenVerifier interface {
	Verify(token string) (*pkgAuth.Claims, error)
}

// Auth validates a bearer token and seeds the request context with the operator.
func Auth(tokens TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			op := claims.Operator()
			ctx := WithActor(r.Context(), op.Subject, op.Role)
			if logg != nil {
				ctx = logg.WithActor(ctx, op.Subject)
				ctx = logg.WithActorRole(ctx, op.Role)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
