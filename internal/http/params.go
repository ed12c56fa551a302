package http

import (
	"strconv"
	"strings"

	"github.com/karloscodes/cartridge"

	"appinsights/internal/analytics"
	"appinsights/internal/timeframe"
)

const maxLimit = 500

// parseQueryFilters builds the analytics query params from the request.
// When no explicit range is given the frame defaults to the span of the
// imported data, since the exports are historical snapshots.
func parseQueryFilters(ctx *cartridge.Context) (analytics.QueryParams, error) {
	db := ctx.DB()

	apps := splitQueryList(ctx.Query("apps"))

	fallbackFrom, fallbackTo, err := analytics.GetEventTimeRange(db, apps)
	if err != nil {
		return analytics.QueryParams{}, err
	}

	timeFrame, err := timeframe.ParseDateRange(ctx.Query("from"), ctx.Query("to"), fallbackFrom, fallbackTo)
	if err != nil {
		return analytics.QueryParams{}, err
	}

	params := analytics.NewQueryParams(timeFrame, apps)
	params.Devices = splitQueryList(ctx.Query("devices"))
	params.Countries = splitQueryList(ctx.Query("countries"))

	if raw := ctx.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			if limit > maxLimit {
				limit = maxLimit
			}
			params.Limit = limit
		}
	}

	return params, nil
}

// splitQueryList splits a comma-separated query value, dropping empties.
func splitQueryList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
