package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"signupgate/pkg/requestcontext"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "matching token passes", configured: "secret-token", header: "secret-token", wantStatus: http.StatusNoContent},
		{name: "missing token rejected", configured: "secret-token", header: "", wantStatus: http.StatusForbidden},
		{name: "wrong token rejected", configured: "secret-token", header: "nope", wantStatus: http.StatusForbidden},
		{name: "unconfigured token rejects everything", configured: "", header: "", wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireAdminToken(tt.configured, logger)(ok)
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(AdminTokenHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("generates id when header missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("reuses inbound uuid", func(t *testing.T) {
		inbound := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, inbound)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, inbound, seen)
	})

	t.Run("replaces non-uuid header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, "<script>", seen)
	})
}
