package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"ctabeacon/internal/analytics"
	"ctabeacon/internal/config"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/operators"
	"ctabeacon/internal/ratelimit"
	"ctabeacon/internal/visitors"
)

// DBManager wraps cartridge's sqlite.Manager with the schema migrations.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// Models lists every persisted type.
func Models() []any {
	return []any{
		&cache.CacheRecord{},
		&ctas.Definition{},
		&analytics.Event{},
		&visitors.Visitor{},
		&ratelimit.CounterRecord{},
		&operators.Operator{},
	}
}

// Migrate creates or updates the schema on db.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	})
}

// MigrateDatabase runs the schema migrations and checkpoints the WAL.
func (dm *DBManager) MigrateDatabase() error {
	if err := Migrate(dm.GetConnection()); err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
