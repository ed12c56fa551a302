package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"appinsights/internal/config"
	"appinsights/internal/events"
	"appinsights/internal/ingest"
	"appinsights/internal/sessions"
)

type AppStatus struct {
	AppName      string     `json:"app_name"`
	SourcePath   string     `json:"source_path"`
	Imported     bool       `json:"imported"`
	RawEvents    int64      `json:"raw_events"`
	Events       int64      `json:"events"`
	Sessions     int64      `json:"sessions"`
	SkippedLines int        `json:"skipped_lines"`
	ImportedAt   *time.Time `json:"imported_at,omitempty"`
}

type AppsResponse struct {
	Apps []AppStatus `json:"apps"`
}

// AppsIndexAction lists every tracked app with its import state and row
// counts. Apps whose export was never found still appear, unimported.
func AppsIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()
	cfg := ctx.Config.(*config.Config)

	records, err := ingest.GetImportRecords(db)
	if err != nil {
		ctx.Logger.Error("Failed to fetch import records", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch import records",
		})
	}

	trackedApps := cfg.GetTrackedApps()
	statuses := make([]AppStatus, 0, len(trackedApps))
	for _, appName := range trackedApps {
		status := AppStatus{
			AppName:    appName,
			SourcePath: cfg.GetSourceFilePath(appName),
		}

		if record, ok := records[appName]; ok {
			status.Imported = true
			status.SkippedLines = record.SkippedLines
			importedAt := record.ImportedAt
			status.ImportedAt = &importedAt
		}

		rawCount, err := events.GetRawEventCountForApp(db, appName)
		if err != nil {
			ctx.Logger.Error("Failed to count raw events", slog.String("app", appName), slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to count events",
			})
		}
		eventCount, err := events.GetEventCountForApp(db, appName)
		if err != nil {
			ctx.Logger.Error("Failed to count events", slog.String("app", appName), slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to count events",
			})
		}
		sessionCount, err := sessions.GetSessionCountForApp(db, appName)
		if err != nil {
			ctx.Logger.Error("Failed to count sessions", slog.String("app", appName), slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to count sessions",
			})
		}

		status.RawEvents = rawCount
		status.Events = eventCount
		status.Sessions = sessionCount
		statuses = append(statuses, status)
	}

	return ctx.JSON(AppsResponse{Apps: statuses})
}
