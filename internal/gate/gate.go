// Package gate decides whether a self-registration attempt carries a valid
// Turnstile challenge. It fails closed: a missing configuration, a missing
// token or any verification trouble produces a denial.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"signupgate/internal/gate/metrics"
	"signupgate/internal/settings"
	"signupgate/internal/turnstile"
	"signupgate/pkg/domain"
	"signupgate/pkg/platform/audit"
	"signupgate/pkg/platform/device"
	"signupgate/pkg/platform/privacy"
	"signupgate/pkg/requestcontext"
)

// User-facing denial messages.
const (
	MessageConfigError          = "Server configuration error: Turnstile is not properly configured"
	MessageVerificationRequired = "Turnstile verification required"
	MessageVerificationFailed   = "Turnstile verification failed. Please try again."
	MessageVerificationError    = "Error during verification. Please try again."
)

// Outcome labels used in logs, metrics and audit reasons.
const (
	OutcomeDisabled     = "disabled"
	OutcomeConfigError  = "config_error"
	OutcomeTokenMissing = "token_missing"
	OutcomeVerifyError  = "verify_error"
	OutcomeVerifyFailed = "verify_failed"
	OutcomeVerified     = "verified"
)

const defaultTimeout = 10 * time.Second

// Verifier validates a challenge token against the provider.
type Verifier interface {
	Verify(ctx context.Context, token, secret, remoteIP string) (*turnstile.VerificationResult, error)
}

// AuditPublisher records gate decisions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Gate is stateless between calls. Settings are read once per decision.
type Gate struct {
	settings settings.Reader
	verifier Verifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
	timeout  time.Duration
	tracer   trace.Tracer
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(g *Gate) {
		g.auditor = p
	}
}

// WithTimeout bounds a single verification call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gate) {
		if t != nil {
			g.tracer = t
		}
	}
}

func New(reader settings.Reader, verifier Verifier, opts ...Option) (*Gate, error) {
	if reader == nil {
		return nil, errors.New("settings reader is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}

	g := &Gate{
		settings: reader,
		verifier: verifier,
		logger:   slog.Default(),
		timeout:  defaultTimeout,
		tracer:   otel.Tracer("signupgate/gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Decide returns prior when the feature is disabled or the challenge verifies,
// and a denial otherwise. A verified challenge never turns a denial into an
// allow. Decide never panics.
func (g *Gate) Decide(ctx context.Context, prior domain.AdmissionDecision, attempt domain.RegistrationAttempt) (decision domain.AdmissionDecision) {
	ctx, span := g.tracer.Start(ctx, "gate.Decide")
	defer span.End()

	outcome := OutcomeVerifyError
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.ErrorContext(ctx, "signup gate panicked",
				"request_id", requestcontext.RequestID(ctx),
				"panic", fmt.Sprint(rec),
			)
			outcome = OutcomeVerifyError
			decision = domain.Deny(MessageVerificationError)
		}
		span.SetAttributes(
			attribute.String("gate.outcome", outcome),
			attribute.Bool("gate.allowed", decision.Allowed),
		)
		g.metrics.IncrementDecision(outcome)
	}()

	cfg, err := settings.Load(ctx, g.settings)
	if err != nil {
		outcome = OutcomeConfigError
		g.logger.ErrorContext(ctx, "turnstile misconfigured",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		g.logAudit(ctx, audit.EventSignupDenied, outcome, attempt, nil)
		return domain.Deny(MessageConfigError)
	}
	if !cfg.Enabled {
		outcome = OutcomeDisabled
		return prior
	}

	if !attempt.HasToken() {
		outcome = OutcomeTokenMissing
		g.logAudit(ctx, audit.EventSignupDenied, outcome, attempt, nil)
		return domain.Deny(MessageVerificationRequired)
	}

	result, err := g.verify(ctx, cfg.SecretKey, attempt)
	if err != nil {
		outcome = OutcomeVerifyError
		g.logger.WarnContext(ctx, "turnstile verification error",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		g.logAudit(ctx, audit.EventSignupDenied, outcome, attempt, nil)
		return domain.Deny(MessageVerificationError)
	}
	if !result.Success {
		outcome = OutcomeVerifyFailed
		g.metrics.IncrementErrorCodes(result.ErrorCodes)
		g.logger.WarnContext(ctx, "turnstile verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error_codes", result.ErrorCodes,
		)
		g.logAudit(ctx, audit.EventSignupDenied, outcome, attempt, result.ErrorCodes)
		return domain.Deny(MessageVerificationFailed)
	}

	outcome = OutcomeVerified
	g.logAudit(ctx, audit.EventChallengeVerified, outcome, attempt, nil)
	return prior
}

func (g *Gate) verify(ctx context.Context, secret string, attempt domain.RegistrationAttempt) (*turnstile.VerificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	result, err := g.verifier.Verify(ctx, attempt.Token(), secret, attempt.RemoteIP)
	g.metrics.ObserveVerifyLatency(time.Since(start))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, turnstile.ErrMalformedResponse
	}
	return result, nil
}

// logAudit writes the decision to the structured log and the audit trail.
func (g *Gate) logAudit(ctx context.Context, event audit.AuditEvent, outcome string, attempt domain.RegistrationAttempt, codes []string) {
	requestID := requestcontext.RequestID(ctx)
	ipPrefix := privacy.AnonymizeIP(attempt.RemoteIP)
	dev := device.Parse(attempt.UserAgent)

	g.logger.InfoContext(ctx, string(event),
		"event", string(event),
		"log_type", "audit",
		"request_id", requestID,
		"reason", outcome,
		"ip_prefix", ipPrefix,
		"device", dev.DisplayName,
	)

	if g.auditor == nil {
		return
	}

	severity := audit.SeverityInfo
	decision := "allowed"
	if event == audit.EventSignupDenied {
		severity = audit.SeverityWarning
		decision = "denied"
		if outcome == OutcomeConfigError {
			severity = audit.SeverityCritical
		}
	}

	err := g.auditor.Emit(ctx, audit.Event{
		Action:     string(event),
		Subject:    ipPrefix,
		Decision:   decision,
		Reason:     outcome,
		RequestID:  requestID,
		Device:     dev.DisplayName,
		Bot:        dev.Bot,
		Severity:   severity,
		ErrorCodes: codes,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestID,
			"action", string(event),
			"error", err.Error(),
		)
	}
}
