package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"appinsights/internal/analytics"
)

// FiltersIndexAction returns the selectable filter values derived from the
// imported data.
func FiltersIndexAction(ctx *cartridge.Context) error {
	options, err := analytics.GetFilterOptions(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to fetch filter options", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch filter options",
		})
	}

	return ctx.JSON(options)
}
