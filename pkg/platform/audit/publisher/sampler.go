package publisher

import (
	"math/rand/v2"
	"sync"

	audit "signupgate/pkg/platform/audit"
)

// Sampler thins out operations events. Security events are always kept.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
	random       func() float64
}

// NewSampler creates a sampler keeping defaultRate of operations events.
// Rates are clamped to [0, 1].
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[string]float64),
		random:       rand.Float64,
	}
}

// SetRate overrides the rate for one action.
func (s *Sampler) SetRate(action audit.AuditEvent, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[string(action)] = clampRate(rate)
}

// Keep reports whether event should be published.
func (s *Sampler) Keep(event audit.Event) bool {
	if event.Category == audit.CategorySecurity {
		return true
	}
	rate := s.rateFor(event.Action)
	switch rate {
	case 0:
		return false
	case 1:
		return true
	}
	return s.random() < rate
}

func (s *Sampler) rateFor(action string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rateByAction[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
