package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"retireplan/pkg/domain"
	dErrors "retireplan/pkg/domain-errors"
	"retireplan/pkg/platform/httputil"
	"retireplan/pkg/requestcontext"
)

// Authenticator verifies a bearer token into a caller identity.
// *identity.Authenticator implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// Identify attaches the verified caller to the request context. A request
// without an Authorization header proceeds unauthenticated; the policy and
// the services decide what it may do. A malformed or rejected token is a
// 401.
func Identify(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - malformed authorization header",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			caller, err := auth.Authenticate(ctx, strings.TrimSpace(token))
			if err != nil {
				level := slog.LevelWarn
				if dErrors.HasCode(err, dErrors.CodeUnavailable) {
					level = slog.LevelError
				}
				logger.Log(ctx, level, "unauthorized access - token rejected",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}
