// Package enrich adds derived attributes to tracked events before they are
// stored.
package enrich

import (
	"ctabeacon/internal/analytics"
)

// Enricher fills the referrer source and, when a GeoIP database is
// available, the visitor country.
type Enricher struct {
	Geo *GeoLocator
}

var _ analytics.Enricher = (*Enricher)(nil)

// Enrich sets ev.ReferrerSource and ev.Country. Context is left as is.
func (e *Enricher) Enrich(ev *analytics.Event) {
	ev.ReferrerSource = SourceName(ev.Referrer, ev.PageURL)
	ev.Country = e.Geo.Country(ev.IPAddress)
}
