package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"signupgate/internal/settings"
	"signupgate/pkg/platform/audit"
	"signupgate/pkg/platform/httputil"
	"signupgate/pkg/platform/sentinel"
	"signupgate/pkg/requestcontext"
)

// AuditPublisher records settings changes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Handler serves the public and admin views of the Turnstile plugin options.
type Handler struct {
	store   settings.Store
	auditor AuditPublisher
	logger  *slog.Logger
}

func New(store settings.Store, auditor AuditPublisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, auditor: auditor, logger: logger}
}

// RegisterPublic mounts the browser-facing route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/plugins/turnstile/public-settings", h.handlePublicSettings)
}

// RegisterAdmin mounts the admin routes. Callers wrap r with auth middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/plugins/turnstile/settings", h.handleGetSettings)
	r.Put("/admin/plugins/turnstile/settings", h.handleUpdateSettings)
}

// AdminSettingsResponse is the admin view. The secret itself is never returned.
type AdminSettingsResponse struct {
	Enabled             bool                   `json:"enabled"`
	SiteKey             string                 `json:"siteKey"`
	SecretKeyConfigured bool                   `json:"secretKeyConfigured"`
	ConfigError         string                 `json:"configError,omitempty"`
	Declarations        []settings.Declaration `json:"declarations"`
}

// UpdateSettingsRequest carries optional new values. Nil fields are left alone.
type UpdateSettingsRequest struct {
	Enabled   *bool   `json:"enabled,omitempty"`
	SiteKey   *string `json:"siteKey,omitempty"`
	SecretKey *string `json:"secretKey,omitempty"`
}

func (h *Handler) handlePublicSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	public, err := settings.LoadPublic(ctx, h.store)
	if err != nil {
		h.writeLoadError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, public)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := settings.Load(ctx, h.store)
	if errors.Is(err, settings.ErrStoreUnavailable) {
		h.writeLoadError(ctx, w, err)
		return
	}

	resp := AdminSettingsResponse{
		Enabled:             cfg.Enabled,
		SiteKey:             cfg.SiteKey,
		SecretKeyConfigured: cfg.SecretKey != "",
		Declarations:        settings.Declarations(),
	}
	if err != nil {
		resp.ConfigError = err.Error()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req UpdateSettingsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid settings update request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	updates := make([]update, 0, 3)
	if req.Enabled != nil {
		updates = append(updates, update{settings.OptionEnabled, *req.Enabled})
	}
	if req.SiteKey != nil {
		updates = append(updates, update{settings.OptionSiteKey, *req.SiteKey})
	}
	if req.SecretKey != nil {
		updates = append(updates, update{settings.OptionSecretKey, *req.SecretKey})
	}
	if len(updates) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "no settings provided")
		return
	}

	for _, u := range updates {
		value, err := settings.Normalize(u.name, u.value)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if err := h.store.SetSetting(ctx, u.name, value); err != nil {
			h.logger.ErrorContext(ctx, "failed to update plugin setting",
				"request_id", requestID,
				"option", u.name,
				"error", err.Error(),
			)
			status := http.StatusInternalServerError
			if errors.Is(err, sentinel.ErrUnavailable) {
				status = http.StatusServiceUnavailable
			}
			httputil.WriteError(w, status, "settings_update_failed", "")
			return
		}
		h.emitUpdated(ctx, u.name)
	}

	w.WriteHeader(http.StatusNoContent)
}

type update struct {
	name  string
	value any
}

func (h *Handler) emitUpdated(ctx context.Context, option string) {
	h.logger.InfoContext(ctx, string(audit.EventPluginSettingsUpdated),
		"request_id", requestcontext.RequestID(ctx),
		"option", option,
	)
	if h.auditor == nil {
		return
	}
	err := h.auditor.Emit(ctx, audit.Event{
		Action:   string(audit.EventPluginSettingsUpdated),
		Subject:  option,
		Severity: audit.SeverityInfo,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to emit audit event", "action", audit.EventPluginSettingsUpdated, "error", err.Error())
	}
}

func (h *Handler) writeLoadError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, settings.ErrStoreUnavailable) {
		h.logger.ErrorContext(ctx, "settings store unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusServiceUnavailable, "settings_unavailable", "")
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, "settings_invalid", "")
}
