package http

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"appinsights/internal/events"
)

const eventsPerPage = 50

type PaginationData struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int   `json:"per_page"`
}

type EventRow struct {
	Timestamp  time.Time        `json:"timestamp"`
	AppName    string           `json:"app_name"`
	EventName  string           `json:"event_name"`
	EventType  events.EventType `json:"event_type"`
	User       string           `json:"user"`
	SessionID  string           `json:"session_id"`
	PageName   string           `json:"page_name,omitempty"`
	ScreenName string           `json:"screen_name,omitempty"`
	WidgetName string           `json:"widget_name,omitempty"`
	Route      string           `json:"route,omitempty"`
	PrevRoute  string           `json:"prev_route,omitempty"`
	CheckIn    string           `json:"check_in,omitempty"`
	CheckOut   string           `json:"check_out,omitempty"`
	DeviceType string           `json:"device_type,omitempty"`
	Country    string           `json:"country,omitempty"`
	City       string           `json:"city,omitempty"`
	AppVersion string           `json:"app_version,omitempty"`
	AppBuild   string           `json:"app_build,omitempty"`
	Duration   int              `json:"duration"`
}

type EventsResponse struct {
	Events     []EventRow     `json:"events"`
	Pagination PaginationData `json:"pagination"`
}

// EventsIndexAction returns the filtered event log, newest first.
func EventsIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	params, err := parseQueryFilters(ctx)
	if err != nil {
		ctx.Logger.Error("Invalid event filters", slog.Any("error", err))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid filters: " + err.Error(),
		})
	}

	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * eventsPerPage

	result, err := events.GetFilteredEvents(db, events.EventFilters{
		Apps:       params.Apps,
		FromDate:   params.TimeFrame.From,
		ToDate:     params.TimeFrame.To,
		Devices:    params.Devices,
		Countries:  params.Countries,
		PageFilter: ctx.Query("page_name", ""),
		UserFilter: ctx.Query("user", ""),
		Limit:      eventsPerPage,
		Offset:     offset,
	})
	if err != nil {
		ctx.Logger.Error("Failed to fetch events", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch events",
		})
	}

	mappedEvents := make([]EventRow, len(result.Events))
	for i, event := range result.Events {
		mappedEvents[i] = EventRow{
			Timestamp:  event.Timestamp,
			AppName:    event.AppName,
			EventName:  event.EventName,
			EventType:  event.EventType,
			User:       event.DistinctID,
			SessionID:  event.SessionID,
			PageName:   event.PageName,
			ScreenName: event.ScreenName,
			WidgetName: event.WidgetName,
			Route:      event.Route,
			PrevRoute:  event.PrevRoute,
			CheckIn:    event.CheckIn,
			CheckOut:   event.CheckOut,
			DeviceType: event.DeviceType,
			Country:    event.Country,
			City:       event.City,
			AppVersion: event.AppVersion,
			AppBuild:   event.AppBuild,
			Duration:   event.Duration,
		}
	}

	totalPages := (int(result.Total) + eventsPerPage - 1) / eventsPerPage

	return ctx.JSON(EventsResponse{
		Events: mappedEvents,
		Pagination: PaginationData{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalItems:  result.Total,
			PerPage:     eventsPerPage,
		},
	})
}
