package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"signupgate/pkg/requestcontext"
)

// RequestIDHeader is echoed on every response and accepted from trusted callers.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request ID (reusing an inbound header when it is a UUID)
// and stores it in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
