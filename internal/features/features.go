// Package features answers whether a premium capability is available.
// The free build reports every Pro capability as unavailable; a configured
// license key (or an explicit Enable call) turns them on.
package features

import (
	"sync"
)

// Capability names consumed by the CTA core.
const (
	ProTypes        = "pro_cta_types"   // popup and slide-in CTAs
	ProLayouts      = "pro_cta_layouts" // card layouts
	ScheduleDisplay = "schedule_status_display"
)

// Oracle is the read side of the feature gate.
type Oracle interface {
	IsCapabilityEnabled(name string) bool
}

// Gate is a concurrency-safe set of enabled capabilities.
type Gate struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

// NewGate creates a gate with the given capabilities already enabled.
func NewGate(capabilities ...string) *Gate {
	g := &Gate{enabled: make(map[string]bool, len(capabilities))}
	for _, c := range capabilities {
		g.enabled[c] = true
	}
	return g
}

// NewGateForLicense enables every Pro capability when a license key is present.
func NewGateForLicense(licenseKey string) *Gate {
	if licenseKey == "" {
		return NewGate()
	}
	return NewGate(All()...)
}

// All lists every known Pro capability.
func All() []string {
	return []string{ProTypes, ProLayouts, ScheduleDisplay}
}

// Enable turns a capability on
func (g *Gate) Enable(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled[name] = true
}

// Disable turns a capability off
func (g *Gate) Disable(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.enabled, name)
}

// IsCapabilityEnabled returns true if the capability is available
func (g *Gate) IsCapabilityEnabled(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled[name]
}
