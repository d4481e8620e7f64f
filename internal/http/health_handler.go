package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	DBStatus      string    `json:"db_status"`
	CounterStatus string    `json:"counter_status"`
}

// HealthHandler reports database and counter store reachability.
type HealthHandler struct {
	Counters Pinger
}

// IndexAction handles the health check endpoint
func (h *HealthHandler) IndexAction(ctx *cartridge.Context) error {
	dbStatus := "ok"

	db := ctx.DBManager.GetConnection()
	if db == nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else if sqlDB, err := db.DB(); err != nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection error", slog.Any("error", err))
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error"
		ctx.Logger.Error("Database ping failed", slog.Any("error", err))
	}

	counterStatus := "ok"
	if h.Counters != nil {
		pingCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.Counters.Ping(pingCtx); err != nil {
			counterStatus = "error"
			ctx.Logger.Error("Counter store ping failed", slog.Any("error", err))
		}
	}

	health := HealthStatus{
		Status:        "ok",
		Timestamp:     time.Now(),
		DBStatus:      dbStatus,
		CounterStatus: counterStatus,
	}
	if dbStatus != "ok" || counterStatus != "ok" {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}
