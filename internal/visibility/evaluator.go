// Package visibility decides whether a CTA may render for the current request.
package visibility

import (
	"log/slog"
	"time"

	"ctabeacon/internal/ctas"
	"ctabeacon/internal/features"
)

// Reason explains a negative decision.
type Reason string

const (
	ReasonNone                 Reason = "none"
	ReasonDisabled             Reason = "disabled"
	ReasonOutsideSchedule      Reason = "outside-schedule"
	ReasonURLBlocked           Reason = "url-blocked"
	ReasonBusinessHoursBlocked Reason = "business-hours-blocked"
	ReasonDeviceBlocked        Reason = "device-blocked"
)

// Decision is the outcome of the gating pipeline for one CTA on one request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Allow is the decision returned when every rule passes.
var Allow = Decision{Allowed: true, Reason: ReasonNone}

// Deny builds a negative decision.
func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Request carries the per-request inputs the rules look at.
type Request struct {
	URL    string
	Now    time.Time
	Device string
}

// URLRule may override the URL-targeting result for a CTA.
type URLRule func(allowed bool, cta *ctas.Definition, currentURL string) bool

// Rule may override a business-hours or device-targeting result.
type Rule func(allowed bool, cta *ctas.Definition, req Request) bool

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithURLRule appends a primary URL-targeting rule.
func WithURLRule(r URLRule) Option {
	return func(e *Evaluator) { e.urlRules = append(e.urlRules, r) }
}

// WithLegacyURLRule appends a rule run after every primary URL rule.
func WithLegacyURLRule(r URLRule) Option {
	return func(e *Evaluator) { e.legacyURLRules = append(e.legacyURLRules, r) }
}

// WithBusinessHoursRule appends a business-hours rule.
func WithBusinessHoursRule(r Rule) Option {
	return func(e *Evaluator) { e.businessHoursRules = append(e.businessHoursRules, r) }
}

// WithDeviceRule appends a device-targeting rule.
func WithDeviceRule(r Rule) Option {
	return func(e *Evaluator) { e.deviceRules = append(e.deviceRules, r) }
}

// WithLogger sets the logger used for denied decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// Evaluator runs the ordered visibility rules. Rules are applied in
// registration order and evaluation stops at the first failing stage.
type Evaluator struct {
	gate               features.Oracle
	logger             *slog.Logger
	urlRules           []URLRule
	legacyURLRules     []URLRule
	businessHoursRules []Rule
	deviceRules        []Rule
}

// NewEvaluator creates an evaluator backed by the given feature gate.
func NewEvaluator(gate features.Oracle, opts ...Option) *Evaluator {
	e := &Evaluator{gate: gate, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the decision together with the CTA to render. When the
// decision is allowed the returned CTA may be a downgraded copy; the input
// definition is never modified.
func (e *Evaluator) Evaluate(cta *ctas.Definition, req Request) (Decision, *ctas.Definition) {
	if cta == nil {
		return Deny(ReasonDisabled), nil
	}

	decision := e.decide(cta, req)
	if !decision.Allowed {
		e.logger.Debug("CTA hidden",
			slog.Uint64("cta_id", uint64(cta.ID)),
			slog.String("reason", string(decision.Reason)))
		return decision, cta
	}

	return decision, e.downgrade(cta)
}

func (e *Evaluator) decide(cta *ctas.Definition, req Request) Decision {
	if !e.urlAllowed(cta, req.URL) {
		return Deny(ReasonURLBlocked)
	}

	if !cta.Enabled && !cta.Published() {
		return Deny(ReasonDisabled)
	}

	if !e.withinSchedule(cta, req.Now) {
		return Deny(ReasonOutsideSchedule)
	}

	if !applyRules(e.businessHoursRules, cta, req) {
		return Deny(ReasonBusinessHoursBlocked)
	}

	if !applyRules(e.deviceRules, cta, req) {
		return Deny(ReasonDeviceBlocked)
	}

	return Allow
}

func (e *Evaluator) urlAllowed(cta *ctas.Definition, currentURL string) bool {
	allowed := true
	for _, r := range e.urlRules {
		allowed = r(allowed, cta, currentURL)
	}
	for _, r := range e.legacyURLRules {
		allowed = r(allowed, cta, currentURL)
	}
	return allowed
}

func applyRules(rules []Rule, cta *ctas.Definition, req Request) bool {
	allowed := true
	for _, r := range rules {
		allowed = r(allowed, cta, req)
	}
	return allowed
}

// withinSchedule compares calendar dates only; both bounds are inclusive.
func (e *Evaluator) withinSchedule(cta *ctas.Definition, now time.Time) bool {
	start, end, err := cta.ScheduleWindow()
	if err != nil {
		// A malformed bound imposes no constraint.
		e.logger.Warn("Ignoring malformed CTA schedule",
			slog.Uint64("cta_id", uint64(cta.ID)),
			slog.Any("error", err))
		start, end = lenientBounds(cta)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if start != nil && today.Before(*start) {
		return false
	}
	if end != nil && today.After(*end) {
		return false
	}
	return true
}

// lenientBounds keeps whichever bound parses on its own.
func lenientBounds(cta *ctas.Definition) (start, end *time.Time) {
	startOnly := &ctas.Definition{ScheduleStart: cta.ScheduleStart}
	if s, _, err := startOnly.ScheduleWindow(); err == nil {
		start = s
	}
	endOnly := &ctas.Definition{ScheduleEnd: cta.ScheduleEnd}
	if _, en, err := endOnly.ScheduleWindow(); err == nil {
		end = en
	}
	return start, end
}

// downgrade swaps Pro-only types and layouts for their free equivalents
// when the capability is unavailable.
func (e *Evaluator) downgrade(cta *ctas.Definition) *ctas.Definition {
	proType := IsProType(cta.EffectiveType())
	proLayout := cta.EffectiveLayout() != ctas.LayoutButton

	needType := proType && !e.gate.IsCapabilityEnabled(features.ProTypes)
	needLayout := proLayout && !e.gate.IsCapabilityEnabled(features.ProLayouts)
	if !needType && !needLayout {
		return cta
	}

	effective := cta.Clone()
	if needType {
		effective.Type = ctas.TypePhone
	}
	if needLayout {
		effective.Layout = ctas.LayoutButton
	}
	e.logger.Debug("Downgraded Pro-only CTA",
		slog.Uint64("cta_id", uint64(cta.ID)),
		slog.String("type", string(effective.Type)),
		slog.String("layout", effective.Layout))
	return effective
}

// IsProType reports whether the type requires the Pro capability.
func IsProType(t ctas.Type) bool {
	return t == ctas.TypePopup || t == ctas.TypeSlideIn
}
