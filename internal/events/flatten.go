package events

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"appinsights/internal/properties"
)

// FlattenResult holds the results of batch flattening.
type FlattenResult struct {
	Flattened  int
	ByStrategy map[string]int
}

// FlattenPendingEvents promotes unflattened RawEvents into Events in batches.
// Every raw row produces exactly one flattened row: documents that defeat all
// parse strategies land with their declared defaults rather than being dropped.
func FlattenPendingEvents(dbManager cartridge.DBManager, logger *slog.Logger, batchSize int) (*FlattenResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	db := dbManager.GetConnection()
	result := &FlattenResult{
		ByStrategy: make(map[string]int),
	}

	var rawEvents []RawEvent
	err := db.Where("flattened = 0").Order("id asc").Find(&rawEvents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unflattened events: %w", err)
	}

	if len(rawEvents) == 0 {
		logger.Info("No unflattened events found")
		return result, nil
	}

	logger.Info("Flattening events", slog.Int("total", len(rawEvents)))

	for i := 0; i < len(rawEvents); i += batchSize {
		end := i + batchSize
		if end > len(rawEvents) {
			end = len(rawEvents)
		}
		batch := rawEvents[i:end]

		err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
			return flattenBatch(tx, logger, batch, result)
		})
		if err != nil {
			logger.Error("Failed to flatten batch", slog.Int("start", i), slog.Int("end", end), slog.Any("error", err))
			continue
		}
	}

	logger.Info("Flattened events",
		slog.Int("flattened", result.Flattened),
		slog.Int("total", len(rawEvents)),
		slog.Any("by_strategy", result.ByStrategy))
	return result, nil
}

// flattenBatch flattens a batch of RawEvents within a transaction.
func flattenBatch(tx *gorm.DB, logger *slog.Logger, batch []RawEvent, result *FlattenResult) error {
	for _, raw := range batch {
		event := buildEvent(&raw)

		_, strategy := flattenProperties(&raw, event)
		result.ByStrategy[strategy.String()]++
		if strategy == properties.StrategyNone && raw.Properties != "" {
			logger.Debug("Property document unparseable, keeping defaults",
				slog.Uint64("raw_event_id", uint64(raw.ID)),
				slog.String("app", raw.AppName))
		}

		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		result.Flattened++
	}

	var rawIDs []uint
	for _, raw := range batch {
		rawIDs = append(rawIDs, raw.ID)
	}
	if len(rawIDs) > 0 {
		if err := tx.Model(&RawEvent{}).Where("id IN ?", rawIDs).Update("flattened", 1).Error; err != nil {
			return fmt.Errorf("failed to mark events as flattened: %w", err)
		}
	}

	return nil
}

// buildEvent copies the export columns onto a new Event row.
func buildEvent(raw *RawEvent) *Event {
	return &Event{
		AppName:    raw.AppName,
		UUID:       raw.UUID,
		EventName:  raw.EventName,
		EventType:  ParseEventType(raw.EventName),
		DistinctID: raw.DistinctID,
		Timestamp:  raw.Timestamp,
		CreatedAt:  time.Now().UTC(),
	}
}

// flattenProperties resolves the property document onto the event's typed
// columns and reports which parse strategy succeeded.
func flattenProperties(raw *RawEvent, event *Event) (properties.Values, properties.Strategy) {
	values, strategy := properties.Parse(raw.Properties)

	event.SessionID = values.String("session_id")
	event.Duration = values.Int("duration")
	event.PageName = values.String("page_name")
	event.WidgetName = values.String("widget_name")
	event.ScreenName = values.String("screen_name")
	event.TabName = values.String("tab_name")
	event.Route = values.String("route")
	event.PrevRoute = values.String("prev_route")
	event.CheckIn = values.String("check_in")
	event.CheckOut = values.String("check_out")
	event.Connection = values.String("connection")
	event.DeviceType = values.String("device_type")
	event.OperatingSystem = values.String("os")
	event.Country = values.String("country")
	event.City = values.String("city")
	event.Latitude = values.Float("latitude")
	event.Longitude = values.Float("longitude")
	event.NetworkWifi = values.Bool("network_wifi")
	event.AppVersion = values.String("app_version")
	event.AppBuild = values.String("app_build")

	return values, strategy
}
