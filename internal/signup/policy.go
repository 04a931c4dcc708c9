package signup

import (
	"slices"
	"strings"

	"signupgate/pkg/domain"
)

// Denial messages produced before any plugin filter runs.
const (
	MessageSignupDisabled = "User registration is not allowed"
	MessageDomainRejected = "Registrations from this email domain are not allowed"
)

// Policy computes the host's own admission verdict, which plugin filters
// then refine.
type Policy struct {
	Enabled bool
	// AllowedEmailDomains restricts registrations when non-empty. Matching is
	// case-insensitive on the part after the last "@".
	AllowedEmailDomains []string
}

func (p Policy) Evaluate(email string) domain.AdmissionDecision {
	if !p.Enabled {
		return domain.Deny(MessageSignupDisabled)
	}
	if len(p.AllowedEmailDomains) == 0 {
		return domain.Allow()
	}

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return domain.Deny(MessageDomainRejected)
	}
	emailDomain := strings.ToLower(email[at+1:])
	allowed := slices.ContainsFunc(p.AllowedEmailDomains, func(d string) bool {
		return strings.EqualFold(strings.TrimSpace(d), emailDomain)
	})
	if !allowed {
		return domain.Deny(MessageDomainRejected)
	}
	return domain.Allow()
}
