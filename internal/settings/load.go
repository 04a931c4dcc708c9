package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Configuration error variants. Load wraps them so callers can use errors.Is.
var (
	ErrStoreUnavailable = errors.New("settings store unavailable")
	ErrInvalidEnabled   = errors.New("turnstile-enabled is not a boolean")
	ErrSecretKeyMissing = errors.New("turnstile secret key is not configured")
	ErrSecretKeyInvalid = errors.New("turnstile secret key is not a string")
	ErrInvalidSiteKey   = errors.New("turnstile site key is not a string")
)

// Load fetches the plugin options once and validates them.
//
// An absent enabled flag defaults to true. When the feature is disabled the
// secret is not inspected and err is nil. When it is enabled, a missing or
// non-string secret yields the returned config plus ErrSecretKeyMissing or
// ErrSecretKeyInvalid. Secret shape is otherwise unchecked.
func Load(ctx context.Context, r Reader) (FeatureConfig, error) {
	raw, err := r.GetSettings(ctx, []string{OptionEnabled, OptionSiteKey, OptionSecretKey})
	if err != nil {
		return FeatureConfig{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	enabled, err := parseEnabled(raw[OptionEnabled])
	if err != nil {
		return FeatureConfig{}, err
	}

	cfg := FeatureConfig{Enabled: enabled}
	if siteKey, ok := raw[OptionSiteKey].(string); ok {
		cfg.SiteKey = siteKey
	}
	if !cfg.Enabled {
		return cfg, nil
	}

	switch secret := raw[OptionSecretKey].(type) {
	case nil:
		return cfg, ErrSecretKeyMissing
	case string:
		if secret == "" {
			return cfg, ErrSecretKeyMissing
		}
		cfg.SecretKey = secret
	default:
		return cfg, fmt.Errorf("%w: got %T", ErrSecretKeyInvalid, secret)
	}
	return cfg, nil
}

// LoadPublic returns the browser-safe settings. Secret problems do not matter
// here; only store and enabled-flag failures are reported.
func LoadPublic(ctx context.Context, r Reader) (PublicSettings, error) {
	cfg, err := Load(ctx, r)
	if err != nil && !errors.Is(err, ErrSecretKeyMissing) && !errors.Is(err, ErrSecretKeyInvalid) {
		return PublicSettings{}, err
	}
	return cfg.Public(), nil
}

// Normalize converts an incoming value for the named option to the type the
// backends store: bool for the enabled flag, string for the keys.
func Normalize(name string, value any) (any, error) {
	switch name {
	case OptionEnabled:
		b, err := parseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEnabled, err)
		}
		return b, nil
	case OptionSiteKey:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrInvalidSiteKey, value)
		}
		return s, nil
	case OptionSecretKey:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrSecretKeyInvalid, value)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown option %q", name)
	}
}

func parseEnabled(v any) (bool, error) {
	if v == nil {
		return true, nil
	}
	b, err := parseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidEnabled, err)
	}
	return b, nil
}

func parseBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	default:
		return false, fmt.Errorf("unsupported type %T", v)
	}
}
