// Package internal wires the ctabeacon application together.
package internal

import (
	"context"
	"fmt"

	"github.com/karloscodes/cartridge"

	"ctabeacon/internal/config"
	"ctabeacon/internal/database"
)

// Application wraps cartridge.Application with the ctabeacon services.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Services  *Services
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithExtensions(cfg, Extensions{})
}

// NewAppWithExtensions creates a new application with extra hooks,
// capabilities and routes.
func NewAppWithExtensions(cfg *config.Config, ext Extensions) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db := dbManager.GetConnection()

	counters, err := NewCounterStore(context.Background(), cfg, db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize counter store: %w", err)
	}

	services := NewServices(cfg, db, counters, logger, ext)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    RouteMounter(services),
		BackgroundWorkers: []cartridge.BackgroundWorker{services.Scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    services,
	}, nil
}
