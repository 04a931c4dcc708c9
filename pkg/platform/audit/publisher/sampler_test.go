package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "signupgate/pkg/platform/audit"
	"signupgate/pkg/platform/audit/store/memory"
)

func TestSampler_KeepsSecurityEvents(t *testing.T) {
	s := NewSampler(0)
	assert.True(t, s.Keep(audit.Event{Action: string(audit.EventSignupDenied), Category: audit.CategorySecurity}))
	assert.False(t, s.Keep(audit.Event{Action: string(audit.EventChallengeVerified), Category: audit.CategoryOperations}))
}

func TestSampler_RatesAndOverrides(t *testing.T) {
	s := NewSampler(0.5)
	s.random = func() float64 { return 0.4 }
	verified := audit.Event{Action: string(audit.EventChallengeVerified), Category: audit.CategoryOperations}
	assert.True(t, s.Keep(verified))

	s.random = func() float64 { return 0.6 }
	assert.False(t, s.Keep(verified))

	s.SetRate(audit.EventChallengeVerified, 7)
	assert.True(t, s.Keep(verified), "rates are clamped to 1")
}

func TestPublisher_WithSampler(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithSampler(NewSampler(0)))
	defer pub.Close()

	ctx := context.Background()
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: string(audit.EventChallengeVerified)}))
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: string(audit.EventSignupDenied)}))

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventSignupDenied), events[0].Action)
}
