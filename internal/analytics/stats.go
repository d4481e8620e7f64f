package analytics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Stats summarizes the telemetry of a single CTA.
type Stats struct {
	CTAID          uint    `json:"cta_id"`
	Clicks         int64   `json:"clicks"`
	Impressions    int64   `json:"impressions"`
	PageViews      int64   `json:"page_views"`
	UniqueSessions int64   `json:"unique_sessions"`
	UniqueVisitors int64   `json:"unique_visitors"`
	ClickRate      float64 `json:"click_rate"`
}

type typeCount struct {
	Type  EventType
	Total int64
}

// StatsFor aggregates events for ctaID created in [from, to). Zero times
// leave that side open.
func (s *GormStore) StatsFor(ctx context.Context, ctaID uint, from, to time.Time) (*Stats, error) {
	scope := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&Event{}).Where("cta_id = ?", ctaID)
		if !from.IsZero() {
			q = q.Where("created_at >= ?", from)
		}
		if !to.IsZero() {
			q = q.Where("created_at < ?", to)
		}
		return q
	}

	var counts []typeCount
	if err := scope().
		Select("event_type AS type, COUNT(*) AS total").
		Group("event_type").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count cta events: %w", err)
	}

	stats := &Stats{CTAID: ctaID}
	for _, c := range counts {
		switch c.Type {
		case EventClick:
			stats.Clicks = c.Total
		case EventImpression:
			stats.Impressions = c.Total
		case EventPageView:
			stats.PageViews = c.Total
		}
	}

	if err := scope().
		Where("session_id <> ''").
		Distinct("session_id").
		Count(&stats.UniqueSessions).Error; err != nil {
		return nil, fmt.Errorf("failed to count cta sessions: %w", err)
	}
	if err := scope().
		Where("visitor_id IS NOT NULL").
		Distinct("visitor_id").
		Count(&stats.UniqueVisitors).Error; err != nil {
		return nil, fmt.Errorf("failed to count cta visitors: %w", err)
	}

	if stats.Impressions > 0 {
		stats.ClickRate = float64(stats.Clicks) / float64(stats.Impressions)
	}
	return stats, nil
}
