package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"appinsights/internal/config"
	"appinsights/internal/http"
)

// publicCORSConfig returns the standard CORS configuration for the read API.
// The dashboard frontend may be served from a different origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting only applies in production; in development and test it
	// would interfere with the dashboard's parallel fetches.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// The dashboard issues a handful of requests per page load, so the
	// limit is generous.
	apiRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Reimports are expensive: one full pipeline run per file change is
	// plenty.
	systemRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(5),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	apiConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{apiRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	systemConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: true,
		CustomMiddleware: []fiber.Handler{systemRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === READ API ===
	srv.Get("/api/v1/dashboard", http.DashboardIndexAction, apiConfig)
	srv.Get("/api/v1/events", http.EventsIndexAction, apiConfig)
	srv.Get("/api/v1/apps", http.AppsIndexAction, apiConfig)
	srv.Get("/api/v1/filters", http.FiltersIndexAction, apiConfig)

	// === SYSTEM API ===
	srv.Post("/api/v1/system/reimport", http.SystemReimportAction, systemConfig)
	srv.Post("/api/v1/system/purge-cache", http.SystemPurgeCacheAction, systemConfig)
}
