package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRecord is a rate counter persisted in SQLite.
type CounterRecord struct {
	Key       string    `gorm:"column:counter_key;primaryKey;size:64"`
	Value     int       `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (CounterRecord) TableName() string {
	return "rate_counters"
}

// SQLStore is the CounterStore used when no Redis server is configured.
// Expired rows are ignored on read and removed by PurgeExpired.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore creates a store on db.
func NewSQLStore(db *gorm.DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, logger: logger, now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, key string) (int, bool, error) {
	var rec CounterRecord
	err := s.db.WithContext(ctx).
		Where("counter_key = ? AND expires_at > ?", key, s.now().UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get counter: %w", err)
	}
	return rec.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value int, ttl time.Duration) error {
	return sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if ttl == KeepTTL {
			res := tx.Model(&CounterRecord{}).Where("counter_key = ?", key).Update("value", value)
			if res.Error != nil || res.RowsAffected > 0 {
				return res.Error
			}
			ttl = DefaultWindow
		}

		rec := CounterRecord{Key: key, Value: value, ExpiresAt: s.now().UTC().Add(ttl)}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "counter_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
		}).Create(&rec).Error
	})
}

// PurgeExpired deletes counters whose window has closed.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	var deleted int64
	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		res := tx.Where("expires_at <= ?", s.now().UTC()).Delete(&CounterRecord{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired counters: %w", err)
	}
	return deleted, nil
}

// Ping reports whether the database answers.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
