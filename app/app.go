// Package app is the public embedding API of ctabeacon. Add-ons use it to
// register visibility rules, layout renderers, capabilities and routes
// without touching the core packages.
package app

import (
	"ctabeacon/internal"
	"ctabeacon/internal/config"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/database"
	"ctabeacon/internal/features"
	"ctabeacon/internal/render"
	"ctabeacon/internal/visibility"
)

// Re-export core types
type (
	Application = internal.Application
	Config      = config.Config
	DBManager   = database.DBManager
	Extensions  = internal.Extensions
	CTA         = ctas.Definition
)

// Re-export hook types
type (
	URLRule        = visibility.URLRule
	Rule           = visibility.Rule
	RuleRequest    = visibility.Request
	AttributeHook  = render.AttributeHook
	WrapperHook    = render.WrapperHook
	LayoutRenderer = render.LayoutRenderer
	Attributes     = render.Attributes
	Wrapper        = render.Wrapper
)

// Capability names
const (
	CapabilityProTypes        = features.ProTypes
	CapabilityProLayouts      = features.ProLayouts
	CapabilityScheduleDisplay = features.ScheduleDisplay
)

// Hook registration
var (
	WithURLRule           = visibility.WithURLRule
	WithLegacyURLRule     = visibility.WithLegacyURLRule
	WithBusinessHoursRule = visibility.WithBusinessHoursRule
	WithDeviceRule        = visibility.WithDeviceRule
	WithAttributeHook     = render.WithAttributeHook
	WithWrapperHook       = render.WithWrapperHook
	WithLayoutRenderer    = render.WithLayoutRenderer
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	return config.GetConfig()
}

// NewApp creates a new application with default routes
func NewApp() (*Application, error) {
	return internal.NewApp()
}

// NewAppWithExtensions creates an application with the given add-ons.
func NewAppWithExtensions(cfg *Config, ext Extensions) (*Application, error) {
	return internal.NewAppWithExtensions(cfg, ext)
}
