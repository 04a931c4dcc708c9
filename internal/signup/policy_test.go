package signup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signupgate/pkg/domain"
)

func TestPolicyEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		email  string
		want   domain.AdmissionDecision
	}{
		{"disabled", Policy{Enabled: false}, "a@example.com", domain.Deny(MessageSignupDisabled)},
		{"open", Policy{Enabled: true}, "a@example.com", domain.Allow()},
		{"allowed domain", Policy{Enabled: true, AllowedEmailDomains: []string{"example.com"}}, "a@Example.COM", domain.Allow()},
		{"other domain", Policy{Enabled: true, AllowedEmailDomains: []string{"example.com"}}, "a@evil.test", domain.Deny(MessageDomainRejected)},
		{"no at sign", Policy{Enabled: true, AllowedEmailDomains: []string{"example.com"}}, "example.com", domain.Deny(MessageDomainRejected)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Evaluate(tt.email))
		})
	}
}
