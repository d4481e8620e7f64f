package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "ctabeacon/api/v1"
	"ctabeacon/internal/config"
	"ctabeacon/internal/http"
)

// publicCORSConfig is shared by every endpoint embedding pages call.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent, " + v1.TokenHeader,
}

// SetupSession configures operator sessions on the server.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/login",
	})
	srv.SetSession(sessionMgr)
}

// RouteMounter returns the mount function for the given services.
func RouteMounter(services *Services) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		MountAppRoutes(srv, services)
	}
}

// MountAppRoutes mounts all application routes.
func MountAppRoutes(srv *cartridge.Server, services *Services) {
	SetupSession(srv)

	cfg := config.GetConfig()
	sessionMgr := srv.Session()

	// Request-volume limiting is only applied in production; the click
	// threshold itself is enforced by the tracking recorder everywhere.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Impression and page-view batches are bounded only by the token check.
	publicBatchConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: publicCORSConfig,
	}

	publicGetConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}

	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{sessionMgr.Middleware()},
	}

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === HEALTH ===
	srv.Get("/_health", services.Health.IndexAction)
	srv.Head("/_health", services.Health.IndexAction)

	// === PUBLIC TRACKING API ===
	srv.Get("/x/api/v1/token", services.Tracking.TokenAction, publicGetConfig)
	srv.Options("/x/api/v1/token", preflight, publicGetConfig)

	srv.Post("/x/api/v1/track/click", services.Tracking.TrackClickAction, publicAPIConfig)
	srv.Options("/x/api/v1/track/click", preflight, publicAPIConfig)
	srv.Post("/x/api/v1/track/impressions", services.Tracking.TrackImpressionsAction, publicBatchConfig)
	srv.Options("/x/api/v1/track/impressions", preflight, publicBatchConfig)
	srv.Post("/x/api/v1/track/page-views", services.Tracking.TrackPageViewsAction, publicBatchConfig)
	srv.Options("/x/api/v1/track/page-views", preflight, publicBatchConfig)

	srv.Get("/y/api/v1/tracker.js", v1.TrackerScriptAction, publicGetConfig)

	// === CTA MARKUP ===
	srv.Get("/cta/:id", services.CTAs.RenderAction, publicGetConfig)

	// === AUTHENTICATION ===
	srv.Get("/login", http.LoginStatusAction)
	srv.Post("/login", http.ProcessLoginAction, loginConfig)
	srv.Post("/logout", http.LogoutAction)

	// === OPERATOR API ===
	srv.Get("/admin/api/ctas/:id/stats", services.CTAs.StatsAction, adminAPIConfig)

	if services.routes != nil {
		services.routes(srv)
	}
}
