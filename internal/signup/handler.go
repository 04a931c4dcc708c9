// Package signup is the host's self-registration endpoint. It computes the
// host verdict, runs the signup filters and renders the signup page.
package signup

import (
	"context"
	_ "embed"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"signupgate/internal/settings"
	"signupgate/pkg/domain"
	"signupgate/pkg/platform/httputil"
	"signupgate/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

//go:embed templates/signup.html
var signupPage string

// FilterRunner runs the signup-allowed filter chain.
type FilterRunner interface {
	RunSignupAllowed(ctx context.Context, prior domain.AdmissionDecision, attempt domain.RegistrationAttempt) domain.AdmissionDecision
}

// Injector adds the challenge widget to the signup page.
type Injector interface {
	Inject(page string, public settings.PublicSettings) (string, error)
}

// RegisterRequest is accepted as JSON or as a form post. Forms rendered with
// the widget carry the token as cf-turnstile-response.
type RegisterRequest struct {
	Username            string `json:"username" schema:"username" validate:"required,max=50"`
	Email               string `json:"email" schema:"email" validate:"required,email"`
	Password            string `json:"password" schema:"password" validate:"required,min=6,max=255"`
	TurnstileToken      string `json:"turnstileToken,omitempty" schema:"turnstileToken"`
	CFTurnstileResponse string `json:"-" schema:"cf-turnstile-response"`
}

// Token returns the submitted challenge token, preferring turnstileToken.
func (r RegisterRequest) Token() string {
	if r.TurnstileToken != "" {
		return r.TurnstileToken
	}
	return r.CFTurnstileResponse
}

type Handler struct {
	policy   Policy
	filters  FilterRunner
	settings settings.Reader
	injector Injector
	logger   *slog.Logger
	validate *validator.Validate
	forms    *schema.Decoder
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithPage(reader settings.Reader, injector Injector) Option {
	return func(h *Handler) {
		h.settings = reader
		h.injector = injector
	}
}

func New(policy Policy, filters FilterRunner, opts ...Option) *Handler {
	forms := schema.NewDecoder()
	forms.IgnoreUnknownKeys(true)

	h := &Handler{
		policy:   policy,
		filters:  filters,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		forms:    forms,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/v1/users/register", h.handleRegister)
	r.Get("/signup", h.handleSignupPage)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, err := h.decode(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid registration request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", "username, email and password are required")
		return
	}

	prior := h.policy.Evaluate(req.Email)
	attempt := domain.RegistrationAttempt{
		SubmittedToken: req.Token(),
		RemoteIP:       requestcontext.ClientIP(ctx),
		UserAgent:      requestcontext.UserAgent(ctx),
	}

	decision := h.filters.RunSignupAllowed(ctx, prior, attempt)
	if !decision.Allowed {
		httputil.WriteError(w, http.StatusForbidden, "signup_not_allowed", decision.ErrorMessage)
		return
	}

	h.logger.InfoContext(ctx, "registration admitted", "request_id", requestID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (RegisterRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req RegisterRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		if err := h.forms.Decode(&req, r.PostForm); err != nil {
			return req, err
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return req, err
		}
		if err := h.forms.Decode(&req, r.PostForm); err != nil {
			return req, err
		}
	default:
		if err := httputil.DecodeJSON(r, &req); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (h *Handler) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := signupPage

	if h.settings != nil && h.injector != nil {
		public, err := settings.LoadPublic(ctx, h.settings)
		if err != nil {
			h.logger.WarnContext(ctx, "turnstile settings unavailable, serving page without widget",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		} else if injected, err := h.injector.Inject(page, public); err != nil {
			h.logger.WarnContext(ctx, "widget injection failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		} else {
			page = injected
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}
