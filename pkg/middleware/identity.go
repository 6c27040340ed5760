package middleware

import (
	"net/http"
	"strings"

	apperrors "readerhub/pkg/errors"
	httputil "readerhub/pkg/http"
	"readerhub/pkg/identity"
	"readerhub/pkg/logger"
)

type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

// Authenticate resolves the bearer token into an identity on the request
// context. Requests without a token continue anonymously and each
// operation decides whether that is acceptable. A token that fails
// verification is rejected.
func Authenticate(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				_ = httputil.WriteError(w, apperrors.Unauthorized("Authorization header must use the Bearer scheme"))
				return
			}

			id, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				log.Warn("Rejected bearer token",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				_ = httputil.WriteError(w, apperrors.Unauthorized("Invalid or expired token"))
				return
			}

			ctx := identity.WithIdentity(r.Context(), id)
			ctx = logger.WithContext(ctx, logger.FromContext(ctx, log).With("subject", id.Subject, "role", id.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
