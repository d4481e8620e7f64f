// Package seeder fills a database with a demo CTA and synthetic telemetry.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"ctabeacon/internal/analytics"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/requestctx"
	"ctabeacon/internal/visitors"
)

// Seeder generates page view, impression and click events for one CTA.
type Seeder struct {
	DB       *gorm.DB
	Logger   *slog.Logger
	Sessions int
	Salt     string
	Days     int
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, logger *slog.Logger, sessions int, salt string) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{DB: db, Logger: logger, Sessions: sessions, Salt: salt, Days: 30}
}

// DemoCTA is the definition created when no CTA id is given.
func DemoCTA() *ctas.Definition {
	return &ctas.Definition{
		Name:        "Demo call button",
		Type:        ctas.TypePhone,
		Enabled:     true,
		ButtonText:  "Call us now",
		PhoneNumber: "+1 (555) 000-1111",
	}
}

// Run seeds ctaID, creating the demo CTA first when ctaID is zero. It
// returns the CTA id the events were attached to.
func (s *Seeder) Run(ctx context.Context, ctaID uint) (uint, error) {
	start := time.Now()

	cta, err := s.target(ctaID)
	if err != nil {
		return 0, err
	}

	store := analytics.NewGormStore(s.DB, s.Logger)
	visitorStore := visitors.NewStore(s.DB, s.Salt, s.Logger)
	userAgents := getUserAgents()
	pages := getPages()
	referrers := getReferrers()

	var recorded, failed int
	record := func(e analytics.Event) {
		if store.RecordEvent(ctx, e) {
			recorded++
		} else {
			failed++
		}
	}

	for i := 0; i < s.Sessions; i++ {
		if err := ctx.Err(); err != nil {
			return cta.ID, err
		}

		visitorID, err := visitorStore.FindOrCreate(ctx, visitors.BuildSignature(fmt.Sprintf("seed-visitor-%d", rand.IntN(s.Sessions/2+1)), s.Salt))
		if err != nil {
			return cta.ID, fmt.Errorf("failed to create visitor: %w", err)
		}
		sessionID, err := requestctx.NewSessionID()
		if err != nil {
			return cta.ID, err
		}

		ua := userAgents[rand.IntN(len(userAgents))]
		base := analytics.Event{
			CTAID:     cta.ID,
			CTATitle:  cta.Title(),
			PageURL:   pages[rand.IntN(len(pages))],
			PageTitle: "Demo page",
			Referrer:  referrers[rand.IntN(len(referrers))],
			IPAddress: fmt.Sprintf("10.%d.%d.%d", rand.IntN(256), rand.IntN(256), rand.IntN(254)+1),
			UserAgent: ua,
			Device:    requestctx.ClassifyDevice(ua),
			VisitorID: &visitorID,
			SessionID: sessionID,
			CreatedAt: time.Now().UTC().Add(-time.Duration(rand.IntN(s.Days*24*60)) * time.Minute),
		}

		view := base
		view.Type = analytics.EventPageView
		record(view)

		// Roughly 70% of views scroll the CTA into view, 15% of those click.
		if rand.IntN(100) >= 70 {
			continue
		}
		impression := base
		impression.Type = analytics.EventImpression
		impression.CreatedAt = base.CreatedAt.Add(2 * time.Second)
		record(impression)

		if rand.IntN(100) < 15 {
			click := base
			click.Type = analytics.EventClick
			click.CreatedAt = base.CreatedAt.Add(time.Duration(5+rand.IntN(60)) * time.Second)
			record(click)
		}
	}

	s.Logger.Info("Seeding completed",
		slog.Uint64("cta_id", uint64(cta.ID)),
		slog.Int("recorded", recorded),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(start)))
	return cta.ID, nil
}

func (s *Seeder) target(ctaID uint) (*ctas.Definition, error) {
	if ctaID != 0 {
		return ctas.FindByID(s.DB, ctaID)
	}
	cta := DemoCTA()
	if err := ctas.Save(s.DB, s.Logger, cta); err != nil {
		return nil, fmt.Errorf("failed to create demo cta: %w", err)
	}
	return cta, nil
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
		"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
	}
}

func getPages() []string {
	return []string{
		"https://example.com/",
		"https://example.com/pricing",
		"https://example.com/contact",
		"https://example.com/blog/article-1",
	}
}

// getReferrers returns a list of common referrer URLs
func getReferrers() []string {
	return []string{
		"",
		"https://google.com",
		"https://duckduckgo.com",
		"https://facebook.com",
		"https://example.com/",
	}
}
