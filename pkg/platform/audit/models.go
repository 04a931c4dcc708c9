package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring and forensics:
	// denied signups, misconfigured gates, settings changes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled,
	// such as successfully verified challenges.
	CategoryOperations EventCategory = "operations"
)

// AuditEvent names an action recorded in the audit trail.
type AuditEvent string

const (
	EventSignupDenied          AuditEvent = "signup_denied"
	EventChallengeVerified     AuditEvent = "signup_challenge_verified"
	EventPluginSettingsUpdated AuditEvent = "plugin_settings_updated"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventSignupDenied:          CategorySecurity,
	EventPluginSettingsUpdated: CategorySecurity,
	EventChallengeVerified:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from the gate and the settings surface. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    string        `json:"action"`
	// Subject is the anonymised client IP prefix for signup events,
	// or the option name for settings events.
	Subject   string   `json:"subject,omitempty"`
	Decision  string   `json:"decision,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
	Device    string   `json:"device,omitempty"`
	Bot       bool     `json:"bot,omitempty"`
	Severity  Severity `json:"severity,omitempty"`
	// ErrorCodes carries upstream verification error codes. Never shown to end users.
	ErrorCodes []string `json:"error_codes,omitempty"`
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
