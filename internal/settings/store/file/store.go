package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"signupgate/internal/settings"
	"signupgate/pkg/platform/sentinel"
)

// Store keeps plugin options in a YAML document. The file is re-read on every
// fetch so edits made outside the process take effect on the next decision.
type Store struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func New(fsys afero.Fs, path string) *Store {
	return &Store{fs: fsys, path: path}
}

func (s *Store) GetSettings(_ context.Context, names []string) (map[string]any, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := doc[name]; ok && v != nil {
			out[name] = v
		}
	}
	return out, nil
}

func (s *Store) SetSetting(_ context.Context, name string, value any) error {
	if !settings.IsKnownOption(name) {
		return fmt.Errorf("%w: unknown option %q", sentinel.ErrInvalidInput, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc[name] = value

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings file: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: write settings file: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) read() (map[string]any, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read settings file: %w", sentinel.ErrUnavailable, err)
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse settings file: %w", sentinel.ErrUnavailable, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}
