package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"signupgate/internal/settings"
	"signupgate/pkg/platform/sentinel"
)

// PluginName scopes rows in plugin_settings to this plugin.
const PluginName = "turnstile"

//go:embed schema.sql
var schema string

// Store persists plugin options in the plugin_settings table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the plugin_settings table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate plugin_settings: %w", err)
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context, names []string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM plugin_settings WHERE plugin = $1 AND name = ANY($2)`,
		PluginName, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("%w: query plugin settings: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("%w: scan plugin setting: %w", sentinel.ErrUnavailable, err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate plugin settings: %w", sentinel.ErrUnavailable, err)
	}
	return out, nil
}

func (s *Store) SetSetting(ctx context.Context, name string, value any) error {
	if !settings.IsKnownOption(name) {
		return fmt.Errorf("%w: unknown option %q", sentinel.ErrInvalidInput, name)
	}

	var encoded string
	switch v := value.(type) {
	case string:
		encoded = v
	case bool:
		encoded = strconv.FormatBool(v)
	default:
		return fmt.Errorf("%w: unsupported value type %T", sentinel.ErrInvalidInput, value)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_settings (plugin, name, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (plugin, name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		PluginName, name, encoded)
	if err != nil {
		return fmt.Errorf("%w: upsert plugin setting: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
