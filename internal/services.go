package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	v1 "ctabeacon/api/v1"
	"ctabeacon/internal/analytics"
	"ctabeacon/internal/config"
	"ctabeacon/internal/ctas"
	"ctabeacon/internal/enrich"
	"ctabeacon/internal/features"
	"ctabeacon/internal/http"
	"ctabeacon/internal/jobs"
	"ctabeacon/internal/ratelimit"
	"ctabeacon/internal/render"
	"ctabeacon/internal/requestctx"
	"ctabeacon/internal/token"
	"ctabeacon/internal/tracking"
	"ctabeacon/internal/visibility"
	"ctabeacon/internal/visitors"
)

// catalogTTL bounds how stale a cached CTA definition may be.
const catalogTTL = time.Minute

// CounterStore is the rate counter backend the services run against.
type CounterStore interface {
	ratelimit.CounterStore
	Ping(ctx context.Context) error
}

// Services holds the shared components built once per process.
type Services struct {
	Gate      *features.Gate
	Catalog   *ctas.Catalog
	Events    *analytics.GormStore
	Counters  CounterStore
	Tokens    *token.Issuer
	Recorder  *tracking.Recorder
	Scheduler *jobs.Scheduler
	Geo       *enrich.GeoLocator

	Tracking *v1.TrackingHandler
	CTAs     *http.CTAHandler
	Health   *http.HealthHandler

	routes func(*cartridge.Server)
}

// NewCounterStore selects Redis when a URL is configured and the SQLite
// table otherwise.
func NewCounterStore(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger) (CounterStore, error) {
	if cfg.RedisURL == "" {
		logger.Info("Using SQLite rate counters")
		return ratelimit.NewSQLStore(db, logger), nil
	}

	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Using Redis rate counters")
	return ratelimit.NewRedisStore(client), nil
}

// Extensions customizes the services without modifying them. Hooks run
// after the built-in ones in the order given.
type Extensions struct {
	Capabilities      []string
	RenderOptions     []render.Option
	VisibilityOptions []visibility.Option
	// Routes are mounted after the built-in routes.
	Routes func(*cartridge.Server)
}

// NewServices wires every component against db and counters.
func NewServices(cfg *config.Config, db *gorm.DB, counters CounterStore, logger *slog.Logger, ext Extensions) *Services {
	gate := features.NewGateForLicense(cfg.LicenseKey)
	for _, c := range ext.Capabilities {
		gate.Enable(c)
	}
	geo, err := enrich.OpenGeoLocator(cfg.GeoDBPath, logger)
	if err != nil {
		logger.Warn("Country lookup disabled", slog.Any("error", err))
	}
	events := analytics.NewGormStore(db, logger, analytics.WithEnricher(&enrich.Enricher{Geo: geo}))
	tokens := token.NewIssuer(cfg.PrivateKey, cfg.TokenLifetime())
	limiter := ratelimit.New(counters, cfg.RateLimitMax, cfg.RateLimitWindow(), logger)
	resolver := requestctx.NewResolver(visitors.NewStore(db, cfg.PrivateKey, logger), logger)
	recorder := tracking.NewRecorder(tokens, limiter, resolver, events, logger)
	catalog := ctas.NewCatalog(db, logger, catalogTTL)

	scheduler := jobs.NewScheduler(logger)
	interval := time.Duration(cfg.JobIntervalSeconds) * time.Second
	scheduler.Register("event-retention", jobs.NewRetentionJob(events, cfg.EventsRetentionDays, logger), interval)
	if purger, ok := counters.(jobs.CounterPurger); ok {
		scheduler.Register("counter-purge", jobs.NewCounterPurgeJob(purger, logger), interval)
	}

	return &Services{
		Gate:      gate,
		Catalog:   catalog,
		Events:    events,
		Counters:  counters,
		Tokens:    tokens,
		Recorder:  recorder,
		Scheduler: scheduler,
		Geo:       geo,
		Tracking: &v1.TrackingHandler{
			Recorder:    recorder,
			Tokens:      tokens,
			RetryAfter:  limiter.Window(),
			TokenMaxAge: cfg.TokenLifetime(),
		},
		CTAs: &http.CTAHandler{
			Catalog:   catalog,
			Evaluator: visibility.NewEvaluator(gate, append([]visibility.Option{visibility.WithLogger(logger)}, ext.VisibilityOptions...)...),
			Renderer:  render.NewRenderer(ext.RenderOptions...),
			Gate:      gate,
			Stats:     events,
		},
		Health: &http.HealthHandler{Counters: counters},
		routes: ext.Routes,
	}
}

// Close releases resources held outside the database.
func (s *Services) Close() error {
	return s.Geo.Close()
}
