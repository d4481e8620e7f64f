package visibility

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctabeacon/internal/ctas"
	"ctabeacon/internal/features"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEvaluator(gate features.Oracle, opts ...Option) *Evaluator {
	return NewEvaluator(gate, append([]Option{WithLogger(testLogger)}, opts...)...)
}

func at(day string) Request {
	now, _ := time.Parse(time.DateOnly, day)
	return Request{URL: "https://example.com/", Now: now.Add(15 * time.Hour)}
}

func TestEvaluate(t *testing.T) {
	free := features.NewGate()

	t.Run("nil CTA is disabled", func(t *testing.T) {
		decision, cta := newEvaluator(free).Evaluate(nil, at("2026-06-01"))
		assert.Equal(t, Deny(ReasonDisabled), decision)
		assert.Nil(t, cta)
	})

	t.Run("enabled CTA is shown", func(t *testing.T) {
		def := &ctas.Definition{ID: 1, Enabled: true}
		decision, cta := newEvaluator(free).Evaluate(def, at("2026-06-01"))
		assert.True(t, decision.Allowed)
		assert.Same(t, def, cta)
	})

	t.Run("disabled unless published", func(t *testing.T) {
		decision, _ := newEvaluator(free).Evaluate(&ctas.Definition{}, at("2026-06-01"))
		assert.Equal(t, ReasonDisabled, decision.Reason)

		decision, _ = newEvaluator(free).Evaluate(&ctas.Definition{Status: "Published"}, at("2026-06-01"))
		assert.True(t, decision.Allowed)
	})

	t.Run("schedule bounds are inclusive", func(t *testing.T) {
		def := &ctas.Definition{Enabled: true, ScheduleStart: "2026-06-01", ScheduleEnd: "2026-06-30"}
		e := newEvaluator(free)

		for day, allowed := range map[string]bool{
			"2026-05-31": false,
			"2026-06-01": true,
			"2026-06-15": true,
			"2026-06-30": true,
			"2026-07-01": false,
		} {
			decision, _ := e.Evaluate(def, at(day))
			assert.Equal(t, allowed, decision.Allowed, day)
			if !allowed {
				assert.Equal(t, ReasonOutsideSchedule, decision.Reason, day)
			}
		}
	})

	t.Run("malformed bound is ignored", func(t *testing.T) {
		def := &ctas.Definition{Enabled: true, ScheduleStart: "soon", ScheduleEnd: "2026-06-30"}
		e := newEvaluator(free)

		decision, _ := e.Evaluate(def, at("2026-01-01"))
		assert.True(t, decision.Allowed)
		decision, _ = e.Evaluate(def, at("2026-07-01"))
		assert.False(t, decision.Allowed)
	})

	t.Run("URL rules run before the enabled check", func(t *testing.T) {
		var calls []string
		e := newEvaluator(free,
			WithLegacyURLRule(func(allowed bool, _ *ctas.Definition, _ string) bool {
				calls = append(calls, "legacy")
				return allowed
			}),
			WithURLRule(func(_ bool, _ *ctas.Definition, u string) bool {
				calls = append(calls, "primary")
				return !strings.Contains(u, "/checkout")
			}),
		)

		decision, _ := e.Evaluate(&ctas.Definition{}, Request{URL: "https://example.com/checkout"})
		assert.Equal(t, ReasonURLBlocked, decision.Reason)
		assert.Equal(t, []string{"primary", "legacy"}, calls)
	})

	t.Run("later rules see earlier results", func(t *testing.T) {
		e := newEvaluator(free,
			WithDeviceRule(func(bool, *ctas.Definition, Request) bool { return false }),
			WithDeviceRule(func(allowed bool, _ *ctas.Definition, req Request) bool {
				return allowed || req.Device == "mobile"
			}),
		)
		def := &ctas.Definition{Enabled: true}

		decision, _ := e.Evaluate(def, Request{Device: "desktop"})
		assert.Equal(t, ReasonDeviceBlocked, decision.Reason)
		decision, _ = e.Evaluate(def, Request{Device: "mobile"})
		assert.True(t, decision.Allowed)
	})

	t.Run("business hours before device", func(t *testing.T) {
		e := newEvaluator(free,
			WithBusinessHoursRule(func(bool, *ctas.Definition, Request) bool { return false }),
			WithDeviceRule(func(bool, *ctas.Definition, Request) bool { return false }),
		)
		decision, _ := e.Evaluate(&ctas.Definition{Enabled: true}, Request{})
		assert.Equal(t, ReasonBusinessHoursBlocked, decision.Reason)
	})
}

func TestDowngrade(t *testing.T) {
	def := &ctas.Definition{ID: 3, Enabled: true, Type: ctas.TypePopup, Layout: "card-top", DataAttributes: map[string]string{"a": "b"}}

	t.Run("free build falls back to a phone button", func(t *testing.T) {
		decision, effective := newEvaluator(features.NewGate()).Evaluate(def, Request{})
		require.True(t, decision.Allowed)
		assert.Equal(t, ctas.TypePhone, effective.Type)
		assert.Equal(t, ctas.LayoutButton, effective.Layout)
		assert.Equal(t, ctas.TypePopup, def.Type, "input must not change")
		assert.Equal(t, "card-top", def.Layout)
	})

	t.Run("capabilities are checked independently", func(t *testing.T) {
		_, effective := newEvaluator(features.NewGate(features.ProLayouts)).Evaluate(def, Request{})
		assert.Equal(t, ctas.TypePhone, effective.Type)
		assert.Equal(t, "card-top", effective.Layout)
	})

	t.Run("licensed build keeps Pro settings", func(t *testing.T) {
		_, effective := newEvaluator(features.NewGateForLicense("key")).Evaluate(def, Request{})
		assert.Same(t, def, effective)
	})
}

func TestStatusFor(t *testing.T) {
	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	gate := features.NewGate(features.ScheduleDisplay)

	assert.Equal(t, ScheduleRestricted, StatusFor(features.NewGate(), &ctas.Definition{}, now))
	assert.Equal(t, ScheduleAlways, StatusFor(gate, &ctas.Definition{}, now))
	assert.Equal(t, ScheduleUpcoming, StatusFor(gate, &ctas.Definition{ScheduleStart: "2026-06-16"}, now))
	assert.Equal(t, ScheduleActive, StatusFor(gate, &ctas.Definition{ScheduleStart: "2026-06-15", ScheduleEnd: "2026-06-15"}, now))
	assert.Equal(t, ScheduleExpired, StatusFor(gate, &ctas.Definition{ScheduleEnd: "2026-06-14"}, now))
	assert.Equal(t, ScheduleInvalid, StatusFor(gate, &ctas.Definition{ScheduleEnd: "06/14/2026"}, now))
}
