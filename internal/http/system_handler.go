package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"

	"appinsights/internal/analytics"
	"appinsights/internal/config"
	"appinsights/internal/ingest"
)

// SystemReimportAction re-runs the full pipeline: import, flatten, rebuild.
// With ?force=true the file fingerprints are invalidated first so every
// export is reread even when unchanged.
func SystemReimportAction(ctx *cartridge.Context) error {
	cfg := ctx.Config.(*config.Config)
	force := ctx.Query("force") == "true"

	if force {
		if err := ingest.InvalidateFingerprints(ctx.DBManager, ctx.Logger); err != nil {
			ctx.Logger.Error("Failed to invalidate fingerprints", slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to invalidate fingerprints",
			})
		}
	}

	importer := ingest.NewImporter(cfg, ctx.DBManager, ctx.Logger)
	summary, err := importer.Refresh(force)
	if err != nil {
		ctx.Logger.Error("Reimport failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "reimport failed",
		})
	}

	analytics.ClearFilterCache()

	ctx.Logger.Info("Reimport completed",
		slog.Int("apps", len(summary.Apps)),
		slog.Int("flattened", summary.Flattened),
		slog.Int64("sessions", summary.Sessions))

	return ctx.JSON(summary)
}

// SystemPurgeCacheAction clears both the persistent cache table and the
// in-memory filter options.
func SystemPurgeCacheAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	rowsAffected, err := cache.PurgeAllCaches(db)
	if err != nil {
		ctx.Logger.Error("Failed to purge caches", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to purge caches",
		})
	}

	analytics.ClearFilterCache()

	ctx.Logger.Info("Caches purged", slog.Int64("rows_deleted", rowsAffected))
	return ctx.JSON(fiber.Map{
		"success":      true,
		"rows_deleted": rowsAffected,
	})
}
