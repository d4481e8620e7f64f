package visibility

import (
	"time"

	"ctabeacon/internal/ctas"
	"ctabeacon/internal/features"
)

// ScheduleStatus labels where today falls relative to a CTA's schedule.
type ScheduleStatus string

const (
	ScheduleAlways     ScheduleStatus = "always"
	ScheduleUpcoming   ScheduleStatus = "upcoming"
	ScheduleActive     ScheduleStatus = "active"
	ScheduleExpired    ScheduleStatus = "expired"
	ScheduleInvalid    ScheduleStatus = "invalid"
	ScheduleRestricted ScheduleStatus = ""
)

// StatusFor returns the schedule status shown to operators. Without the
// schedule display capability the status is withheld.
func StatusFor(gate features.Oracle, cta *ctas.Definition, now time.Time) ScheduleStatus {
	if !gate.IsCapabilityEnabled(features.ScheduleDisplay) {
		return ScheduleRestricted
	}

	start, end, err := cta.ScheduleWindow()
	if err != nil {
		return ScheduleInvalid
	}
	if start == nil && end == nil {
		return ScheduleAlways
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case start != nil && today.Before(*start):
		return ScheduleUpcoming
	case end != nil && today.After(*end):
		return ScheduleExpired
	default:
		return ScheduleActive
	}
}
