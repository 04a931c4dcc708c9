package memory

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"signupgate/internal/settings"
	"signupgate/pkg/platform/sentinel"
)

// Store keeps plugin options in a lock-free map. Values keep the type they were
// written with, so a bool written for the enabled flag reads back as bool.
type Store struct {
	values *xsync.Map[string, any]
}

// New returns a store seeded with the given values. Unknown names in seed are ignored.
func New(seed map[string]any) *Store {
	s := &Store{values: xsync.NewMap[string, any](xsync.WithPresize(3))}
	for name, value := range seed {
		if settings.IsKnownOption(name) {
			s.values.Store(name, value)
		}
	}
	return s
}

func (s *Store) GetSettings(_ context.Context, names []string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := s.values.Load(name); ok {
			out[name] = v
		}
	}
	return out, nil
}

func (s *Store) SetSetting(_ context.Context, name string, value any) error {
	if !settings.IsKnownOption(name) {
		return fmt.Errorf("%w: unknown option %q", sentinel.ErrInvalidInput, name)
	}
	s.values.Store(name, value)
	return nil
}

// Delete removes an option so it reads as absent.
func (s *Store) Delete(name string) {
	s.values.Delete(name)
}
