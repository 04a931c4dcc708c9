package signup

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"signupgate/internal/gate"
	"signupgate/internal/gate/metrics"
	"signupgate/internal/hooks"
	"signupgate/internal/settings"
	"signupgate/internal/settings/store/memory"
	"signupgate/internal/turnstile"
	"signupgate/internal/widget"
	"signupgate/pkg/platform/httputil"
	metadata "signupgate/pkg/platform/middleware/metadata"
)

const validToken = "good-token"

// SignupSuite drives the registration endpoint through the real gate and a
// fake siteverify server.
type SignupSuite struct {
	suite.Suite
	siteverify *httptest.Server
	calls      atomic.Int32
	lastIP     atomic.Value
	store      *memory.Store
	router     chi.Router
}

func TestSignupSuite(t *testing.T) {
	suite.Run(t, new(SignupSuite))
}

func (s *SignupSuite) SetupTest() {
	s.calls.Store(0)
	s.siteverify = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		_ = r.ParseForm()
		s.lastIP.Store(r.PostForm.Get("remoteip"))
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("response") == validToken && r.PostForm.Get("secret") == "secret" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	s.T().Cleanup(s.siteverify.Close)

	s.store = memory.New(map[string]any{
		settings.OptionEnabled:   true,
		settings.OptionSiteKey:   "site-key",
		settings.OptionSecretKey: "secret",
	})
	s.router = s.newRouter(Policy{Enabled: true})
}

func (s *SignupSuite) newRouter(policy Policy) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := turnstile.NewClient(turnstile.WithVerifyURL(s.siteverify.URL), turnstile.WithTimeout(time.Second))
	g, err := gate.New(s.store, client, gate.WithLogger(logger), gate.WithMetrics(metrics.New(prometheus.NewRegistry())))
	s.Require().NoError(err)

	registry := hooks.NewRegistry(hooks.WithLogger(logger))
	s.Require().NoError(gate.Register(registry, g))

	h := New(policy, registry,
		WithLogger(logger),
		WithPage(s.store, widget.NewInjector(widget.WithInjectorLogger(logger))),
	)
	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata(false))
	h.Register(r)
	return r
}

func (s *SignupSuite) postJSON(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.23:51234"
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *SignupSuite) postForm(values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *SignupSuite) denial(w *httptest.ResponseRecorder) string {
	s.Require().Equal(http.StatusForbidden, w.Code)
	var body httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("signup_not_allowed", body.Error)
	return body.ErrorDescription
}

func registration(token string) string {
	payload := map[string]string{"username": "alice", "email": "alice@example.com", "password": "correct horse"}
	if token != "" {
		payload["turnstileToken"] = token
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// =============================================================================
// JSON registrations
// =============================================================================

func (s *SignupSuite) TestValidTokenIsAdmitted() {
	w := s.postJSON(registration(validToken))
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal(int32(1), s.calls.Load())
	s.Equal("198.51.100.23", s.lastIP.Load())
}

func (s *SignupSuite) TestMissingTokenIsDeniedWithoutUpstreamCall() {
	w := s.postJSON(registration(""))
	s.Equal(gate.MessageVerificationRequired, s.denial(w))
	s.Zero(s.calls.Load())
}

func (s *SignupSuite) TestRejectedTokenIsDenied() {
	w := s.postJSON(registration("bad-token"))
	msg := s.denial(w)
	s.Equal(gate.MessageVerificationFailed, msg)
	s.NotContains(w.Body.String(), "invalid-input-response")
}

func (s *SignupSuite) TestMissingSecretFailsClosed() {
	s.store.Delete(settings.OptionSecretKey)
	w := s.postJSON(registration(validToken))
	s.Equal(gate.MessageConfigError, s.denial(w))
	s.Zero(s.calls.Load())
}

func (s *SignupSuite) TestDisabledGateKeepsHostVerdict() {
	s.Require().NoError(s.store.SetSetting(s.T().Context(), settings.OptionEnabled, false))

	s.Equal(http.StatusNoContent, s.postJSON(registration("")).Code)

	s.router = s.newRouter(Policy{Enabled: false})
	s.Equal(MessageSignupDisabled, s.denial(s.postJSON(registration(""))))
}

func (s *SignupSuite) TestVerifiedTokenDoesNotOverrideHostDenial() {
	s.router = s.newRouter(Policy{Enabled: true, AllowedEmailDomains: []string{"corp.example"}})
	w := s.postJSON(registration(validToken))
	s.Equal(MessageDomainRejected, s.denial(w))
}

func (s *SignupSuite) TestMalformedBodies() {
	s.Run("not json", func() {
		s.Equal(http.StatusBadRequest, s.postJSON(`{"username":`).Code)
	})
	s.Run("unknown field", func() {
		s.Equal(http.StatusBadRequest, s.postJSON(`{"username":"a","email":"a@b.co","password":"123456","admin":true}`).Code)
	})
	s.Run("missing fields", func() {
		s.Equal(http.StatusBadRequest, s.postJSON(`{"username":"a"}`).Code)
	})
	s.Zero(s.calls.Load())
}

// =============================================================================
// Form registrations
// =============================================================================

func (s *SignupSuite) TestFormWithWidgetResponseField() {
	w := s.postForm(url.Values{
		"username":              {"alice"},
		"email":                 {"alice@example.com"},
		"password":              {"correct horse"},
		"cf-turnstile-response": {validToken},
	})
	s.Equal(http.StatusNoContent, w.Code)
}

func (s *SignupSuite) TestFormWithoutToken() {
	w := s.postForm(url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"correct horse"},
	})
	s.Equal(gate.MessageVerificationRequired, s.denial(w))
}

// =============================================================================
// Signup page
// =============================================================================

func (s *SignupSuite) TestSignupPageCarriesWidget() {
	req := httptest.NewRequest(http.MethodGet, "/signup", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	s.Contains(body, widget.ScriptURL)
	s.Contains(body, `data-sitekey="site-key"`)
	s.NotContains(body, "secret")
}

func (s *SignupSuite) TestSignupPageWithoutWidgetWhenDisabled() {
	s.Require().NoError(s.store.SetSetting(s.T().Context(), settings.OptionEnabled, false))

	req := httptest.NewRequest(http.MethodGet, "/signup", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), widget.ScriptURL)
}
