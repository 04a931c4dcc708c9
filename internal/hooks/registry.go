// Package hooks is the host's plugin extension surface: typed filter events
// and the settings plugins declare for the admin UI.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"signupgate/internal/settings"
	"signupgate/pkg/domain"
	"signupgate/pkg/platform/sentinel"
)

// Event identifies a filter point in the host pipeline.
type Event int

const (
	// EventSignupAllowedResult runs after the host computes whether a
	// registration may proceed. Filters can only confirm or deny.
	EventSignupAllowedResult Event = iota + 1
)

var eventNames = map[Event]string{
	EventSignupAllowedResult: "filter:api.user.signup.allowed.result",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("hooks.Event(%d)", int(e))
}

// PanicMessage is the denial returned when a filter panics.
const PanicMessage = "Error during verification. Please try again."

// SignupAllowedFilter transforms the admission decision for one attempt.
type SignupAllowedFilter func(ctx context.Context, prior domain.AdmissionDecision, attempt domain.RegistrationAttempt) domain.AdmissionDecision

type namedFilter struct {
	name   string
	filter SignupAllowedFilter
}

// Registry holds filters in registration order. Safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	filters  []namedFilter
	settings []settings.Declaration
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSignupAllowed appends a filter for EventSignupAllowedResult.
func (r *Registry) RegisterSignupAllowed(name string, filter SignupAllowedFilter) error {
	if name == "" {
		return fmt.Errorf("%w: filter name is required", sentinel.ErrInvalidInput)
	}
	if filter == nil {
		return fmt.Errorf("%w: filter %q is nil", sentinel.ErrInvalidInput, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.filters {
		if f.name == name {
			return fmt.Errorf("%w: filter %q already registered for %s", sentinel.ErrConflict, name, EventSignupAllowedResult)
		}
	}
	r.filters = append(r.filters, namedFilter{name: name, filter: filter})
	return nil
}

// RunSignupAllowed threads prior through every registered filter in order.
// Every filter runs even after a denial, so a later filter may still see and
// keep a denial produced earlier.
func (r *Registry) RunSignupAllowed(ctx context.Context, prior domain.AdmissionDecision, attempt domain.RegistrationAttempt) domain.AdmissionDecision {
	r.mu.RLock()
	filters := make([]namedFilter, len(r.filters))
	copy(filters, r.filters)
	r.mu.RUnlock()

	result := prior
	for _, f := range filters {
		result = r.runOne(ctx, f, result, attempt)
	}
	return result
}

func (r *Registry) runOne(ctx context.Context, f namedFilter, prior domain.AdmissionDecision, attempt domain.RegistrationAttempt) (result domain.AdmissionDecision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "filter panicked",
				"event", EventSignupAllowedResult.String(),
				"filter", f.name,
				"panic", fmt.Sprint(rec),
			)
			result = domain.Deny(PanicMessage)
		}
	}()
	return f.filter(ctx, prior, attempt)
}

// Filters returns the registered filter names in order.
func (r *Registry) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.filters))
	for i, f := range r.filters {
		names[i] = f.name
	}
	return names
}

// RegisterSettings declares plugin options for the admin surface.
// Redeclaring a name replaces the earlier declaration.
func (r *Registry) RegisterSettings(decls ...settings.Declaration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range decls {
		replaced := false
		for i := range r.settings {
			if r.settings[i].Name == d.Name {
				r.settings[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			r.settings = append(r.settings, d)
		}
	}
}

// Settings returns the declared options.
func (r *Registry) Settings() []settings.Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]settings.Declaration, len(r.settings))
	copy(out, r.settings)
	return out
}
