package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"signupgate/internal/settings"
)

// TokenField is the signup parameter the gate reads the token from.
const TokenField = "turnstileToken"

const (
	defaultRetryDelay  = 500 * time.Millisecond
	defaultMaxAttempts = 20
)

var (
	// ErrChallengeUnavailable means the challenge API never became ready.
	ErrChallengeUnavailable = errors.New("turnstile challenge API unavailable")
	// ErrVerificationRequired blocks submission until the user completes the challenge.
	ErrVerificationRequired = errors.New("turnstile verification required")
)

// NoticeCompleteChallenge is shown to the user when they submit without a token.
const NoticeCompleteChallenge = "Please complete the Turnstile verification"

// RenderOptions are passed to the challenge API when rendering the widget.
type RenderOptions struct {
	SiteKey       string
	Callback      func(token string)
	ErrorCallback func()
}

// ChallengeAPI is the capability exposed by the Turnstile script once loaded.
type ChallengeAPI interface {
	Ready() bool
	Render(selector string, opts RenderOptions) error
	GetResponse() string
}

// Notifier shows a message to the user.
type Notifier interface {
	Error(message string)
}

// Bridge renders the widget and forwards its token with the signup request.
type Bridge struct {
	api         ChallengeAPI
	settings    settings.PublicSettings
	notifier    Notifier
	logger      *slog.Logger
	retryDelay  time.Duration
	maxAttempts int
}

type BridgeOption func(*Bridge)

func WithRetryDelay(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.retryDelay = d
		}
	}
}

func WithMaxAttempts(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

func WithNotifier(n Notifier) BridgeOption {
	return func(b *Bridge) {
		b.notifier = n
	}
}

func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

func NewBridge(api ChallengeAPI, public settings.PublicSettings, opts ...BridgeOption) (*Bridge, error) {
	if api == nil {
		return nil, errors.New("challenge API is required")
	}
	b := &Bridge{
		api:         api,
		settings:    public,
		logger:      slog.Default(),
		retryDelay:  defaultRetryDelay,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Active reports whether the bridge does anything at all.
func (b *Bridge) Active() bool {
	return b.settings.WidgetActive()
}

// Render waits for the challenge API and renders the widget into WidgetSelector.
// Polling stops after maxAttempts checks.
func (b *Bridge) Render(ctx context.Context) error {
	if !b.Active() {
		return nil
	}

	opts := RenderOptions{
		SiteKey: b.settings.SiteKey,
		Callback: func(string) {
			b.logger.Debug("turnstile verification successful")
		},
		ErrorCallback: func() {
			b.logger.Warn("turnstile verification failed")
		},
	}

	for attempt := 1; ; attempt++ {
		if b.api.Ready() {
			if err := b.api.Render(WidgetSelector, opts); err != nil {
				return fmt.Errorf("render turnstile widget: %w", err)
			}
			return nil
		}
		if attempt >= b.maxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrChallengeUnavailable, attempt)
		}

		timer := time.NewTimer(b.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// AttachToken returns a copy of params carrying the widget's token under
// TokenField. Without a token the user is notified and submission is blocked.
func (b *Bridge) AttachToken(params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params)+1)
	maps.Copy(out, params)
	if !b.Active() {
		return out, nil
	}

	token := b.api.GetResponse()
	if token == "" {
		if b.notifier != nil {
			b.notifier.Error(NoticeCompleteChallenge)
		}
		return nil, ErrVerificationRequired
	}
	out[TokenField] = token
	return out, nil
}
