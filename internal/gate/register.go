package gate

import (
	"signupgate/internal/hooks"
	"signupgate/internal/settings"
)

// FilterName is the gate's name in the hook registry.
const FilterName = "turnstile"

// Register declares the plugin options and attaches g to the signup filter.
func Register(registry *hooks.Registry, g *Gate) error {
	registry.RegisterSettings(settings.Declarations()...)
	return registry.RegisterSignupAllowed(FilterName, g.Decide)
}
