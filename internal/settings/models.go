package settings

import (
	"context"
	"log/slog"
	"slices"
)

// Option names as stored by every backend.
const (
	OptionEnabled   = "turnstile-enabled"
	OptionSiteKey   = "turnstile-site-key"
	OptionSecretKey = "turnstile-secret-key"
)

// OptionType is the form control the host renders for an option.
type OptionType string

const (
	TypeInput         OptionType = "input"
	TypeInputPassword OptionType = "input-password"
	TypeInputCheckbox OptionType = "input-checkbox"
)

// Declaration describes one option on the host's settings surface.
// Private options are never sent to browsers.
type Declaration struct {
	Name        string     `json:"name"`
	Label       string     `json:"label"`
	Type        OptionType `json:"type"`
	Description string     `json:"description"`
	Default     any        `json:"default,omitempty"`
	Private     bool       `json:"private"`
}

// Declarations lists the options the Turnstile plugin owns.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name:        OptionSiteKey,
			Label:       "Turnstile Site Key",
			Type:        TypeInput,
			Description: "Your Cloudflare Turnstile site key",
		},
		{
			Name:        OptionSecretKey,
			Label:       "Turnstile Secret Key",
			Type:        TypeInputPassword,
			Description: "Your Cloudflare Turnstile secret key (keep this private!)",
			Private:     true,
		},
		{
			Name:        OptionEnabled,
			Label:       "Enable Turnstile",
			Type:        TypeInputCheckbox,
			Description: "Enable or disable Turnstile verification",
			Default:     true,
		},
	}
}

var knownOptions = []string{OptionEnabled, OptionSiteKey, OptionSecretKey}

// IsKnownOption reports whether name is one of the plugin's options.
func IsKnownOption(name string) bool {
	return slices.Contains(knownOptions, name)
}

// Reader fetches raw option values by name. Missing options are simply absent
// from the returned map; values are whatever the backend stores.
type Reader interface {
	GetSettings(ctx context.Context, names []string) (map[string]any, error)
}

// Store is a Reader that can also persist option values.
type Store interface {
	Reader
	SetSetting(ctx context.Context, name string, value any) error
}

// FeatureConfig is the validated, typed view of the plugin options.
type FeatureConfig struct {
	Enabled   bool   `json:"enabled"`
	SiteKey   string `json:"siteKey"`
	SecretKey string `json:"-"`
}

// LogValue keeps the secret out of structured logs.
func (c FeatureConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", c.Enabled),
		slog.Bool("site_key_configured", c.SiteKey != ""),
		slog.Bool("secret_key_configured", c.SecretKey != ""),
	)
}

// Public returns the subset of the configuration safe to hand to browsers.
func (c FeatureConfig) Public() PublicSettings {
	return PublicSettings{Enabled: c.Enabled, SiteKey: c.SiteKey}
}

// PublicSettings is what the Widget Bridge receives. It never carries the secret.
type PublicSettings struct {
	Enabled bool   `json:"enabled"`
	SiteKey string `json:"siteKey"`
}

// WidgetActive reports whether the widget should be injected at all.
func (p PublicSettings) WidgetActive() bool {
	return p.Enabled && p.SiteKey != ""
}
