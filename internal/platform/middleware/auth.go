package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"signupgate/pkg/platform/httputil"
	"signupgate/pkg/platform/privacy"
	"signupgate/pkg/requestcontext"
)

// AdminTokenHeader carries the shared admin secret for settings endpoints.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken guards admin routes with a static shared token.
// An empty configured token rejects every request.
func RequireAdminToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin access denied",
					"request_id", requestcontext.RequestID(ctx),
					"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
					"token_present", provided != "",
				)
				httputil.WriteError(w, http.StatusForbidden, "forbidden", "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
