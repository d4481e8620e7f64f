// Package analytics persists CTA telemetry and answers per-CTA statistics.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// EventType is the kind of tracked action.
type EventType string

const (
	EventClick      EventType = "click"
	EventImpression EventType = "impression"
	EventPageView   EventType = "page_view"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventClick, EventImpression, EventPageView:
		return true
	}
	return false
}

// Event is one tracked action. It is never updated after insertion.
type Event struct {
	ID        uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      EventType         `gorm:"column:event_type;size:16;index:idx_cta_type_time;not null" json:"type"`
	CTAID     uint              `gorm:"column:cta_id;index:idx_cta_type_time;not null" json:"cta_id"`
	CTATitle  string            `gorm:"column:cta_title" json:"cta_title"`
	PageURL   string            `json:"page_url"`
	PageTitle string            `json:"page_title"`
	Referrer  string            `json:"referrer"`
	IPAddress string            `gorm:"size:45" json:"ip_address"`
	UserAgent string            `json:"user_agent"`
	Device    string            `gorm:"size:16" json:"device"`
	VisitorID *uint             `gorm:"index" json:"visitor_id"`
	SessionID string            `gorm:"size:34;index" json:"session_id"`
	Context   map[string]string `gorm:"serializer:json" json:"context"`

	// Derived by the store's enrichers; empty when not resolvable.
	ReferrerSource string `gorm:"size:64" json:"referrer_source"`
	Country        string `gorm:"size:2" json:"country"`

	CreatedAt time.Time         `gorm:"index:idx_cta_type_time;not null" json:"created_at"`
}

func (Event) TableName() string {
	return "cta_events"
}

// Store accepts events. RecordEvent reports success and never panics or
// returns an error to the caller.
type Store interface {
	RecordEvent(ctx context.Context, event Event) bool
}

// Enricher fills derived fields on an event right before it is written.
// It must not touch Context.
type Enricher interface {
	Enrich(ev *Event)
}

// StoreOption configures a GormStore.
type StoreOption func(*GormStore)

// WithEnricher runs e on every accepted event, in registration order.
func WithEnricher(e Enricher) StoreOption {
	return func(s *GormStore) { s.enrichers = append(s.enrichers, e) }
}

// GormStore writes events to SQLite.
type GormStore struct {
	db        *gorm.DB
	logger    *slog.Logger
	enrichers []Enricher
}

// NewGormStore creates a store on db.
func NewGormStore(db *gorm.DB, logger *slog.Logger, opts ...StoreOption) *GormStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GormStore{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) RecordEvent(ctx context.Context, event Event) bool {
	if !event.Type.Valid() || event.CTAID == 0 {
		s.logger.Warn("Rejected invalid CTA event",
			slog.String("type", string(event.Type)),
			slog.Uint64("cta_id", uint64(event.CTAID)))
		return false
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Context == nil {
		event.Context = map[string]string{}
	}
	for _, e := range s.enrichers {
		e.Enrich(&event)
	}

	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(&event).Error
	})
	if err != nil {
		s.logger.Error("Failed to record CTA event",
			slog.Uint64("cta_id", uint64(event.CTAID)),
			slog.String("type", string(event.Type)),
			slog.Any("error", err))
		return false
	}
	return true
}

// DeleteOlderThan removes events created before cutoff in batches and
// returns the number deleted.
func (s *GormStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for {
		var deleted int64
		err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
			batch := tx.Model(&Event{}).Select("id").Where("created_at < ?", cutoff).Limit(batchSize)
			res := tx.Where("id IN (?)", batch).Delete(&Event{})
			deleted = res.RowsAffected
			return res.Error
		})
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < int64(batchSize) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
