package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"signupgate/internal/settings"
	"signupgate/pkg/platform/sentinel"
)

// Store keeps plugin options as fields of one Redis hash. Every value is read
// back as a string; settings.Load parses the enabled flag.
type Store struct {
	client redis.UniversalClient
	key    string
}

func New(client redis.UniversalClient, key string) *Store {
	return &Store{client: client, key: key}
}

func (s *Store) GetSettings(ctx context.Context, names []string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	if len(names) == 0 {
		return out, nil
	}
	values, err := s.client.HMGet(ctx, s.key, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read settings hash: %w", sentinel.ErrUnavailable, err)
	}
	for i, v := range values {
		if v != nil {
			out[names[i]] = v
		}
	}
	return out, nil
}

func (s *Store) SetSetting(ctx context.Context, name string, value any) error {
	if !settings.IsKnownOption(name) {
		return fmt.Errorf("%w: unknown option %q", sentinel.ErrInvalidInput, name)
	}
	encoded, err := encode(value)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, name, encoded).Err(); err != nil {
		return fmt.Errorf("%w: write settings hash: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func encode(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("%w: unsupported value type %T", sentinel.ErrInvalidInput, value)
	}
}
