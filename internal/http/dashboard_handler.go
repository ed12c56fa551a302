package http

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"appinsights/internal/analytics"
	"appinsights/internal/pkg/async"
	"appinsights/internal/timeframe"
)

type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type DashboardResponse struct {
	Totals              analytics.Totals              `json:"totals"`
	ActiveUsers         []TimeSeriesPoint             `json:"active_users"`
	ActiveUsersByApp    map[string][]TimeSeriesPoint  `json:"active_users_by_app"`
	ActiveUsersTrend    float64                       `json:"active_users_trend"`
	TopPages            []analytics.MetricCountResult `json:"top_pages"`
	TopWidgets          []analytics.MetricCountResult `json:"top_widgets"`
	TopScreens          []analytics.MetricCountResult `json:"top_screens"`
	TopTabs             []analytics.MetricCountResult `json:"top_tabs"`
	TopCountries        []analytics.MetricCountResult `json:"top_countries"`
	TopDevices          []analytics.MetricCountResult `json:"top_devices"`
	TopOperatingSystems []analytics.MetricCountResult `json:"top_operating_systems"`
	Apps                []analytics.AppSummary        `json:"apps"`
	Versions            []analytics.VersionSummary    `json:"versions"`
	Connections         []analytics.ConnectionSummary `json:"connections"`
	UsageHeatmap        []analytics.HeatmapCell       `json:"usage_heatmap"`
	DurationHistogram   []analytics.DurationBucket    `json:"duration_histogram"`
	UserFlow            []analytics.UserFlowLink      `json:"user_flow"`
	GeoPerformance      []analytics.GeoSummary        `json:"geo_performance"`
	BucketSize          string                        `json:"bucket_size"`
	From                string                        `json:"from"`
	To                  string                        `json:"to"`
}

// DashboardIndexAction assembles the whole dashboard payload in one request.
func DashboardIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	params, err := parseQueryFilters(ctx)
	if err != nil {
		ctx.Logger.Error("Invalid dashboard filters", slog.Any("error", err))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid filters: " + err.Error(),
		})
	}

	resp, err := fetchDashboardMetrics(db, params, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Error fetching dashboard metrics", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "error fetching metrics",
		})
	}

	return ctx.JSON(resp)
}

func fetchDashboardMetrics(db *gorm.DB, params analytics.QueryParams, logger *slog.Logger) (*DashboardResponse, error) {
	tasks := []async.Task{
		{
			Name: "totals",
			Execute: func() (interface{}, error) {
				return analytics.GetTotalsInTimeFrame(db, params)
			},
		},
		{
			Name: "activeUsers",
			Execute: func() (interface{}, error) {
				stats, err := analytics.AggregatedActiveUsersInTimeFrame(db, params)
				if err != nil {
					logger.Error("Error fetching active user series", slog.Any("error", err))
					return []timeframe.DateStat{}, err
				}
				return stats, nil
			},
		},
		{
			Name: "activeUsersByApp",
			Execute: func() (interface{}, error) {
				return analytics.GetActiveUserSeriesByApp(db, params)
			},
		},
		{
			Name: "topPages",
			Execute: func() (interface{}, error) {
				return analytics.GetTopPagesInTimeFrame(db, params)
			},
		},
		{
			Name: "topWidgets",
			Execute: func() (interface{}, error) {
				return analytics.GetTopWidgetsInTimeFrame(db, params)
			},
		},
		{
			Name: "topScreens",
			Execute: func() (interface{}, error) {
				return analytics.GetTopScreensInTimeFrame(db, params)
			},
		},
		{
			Name: "topTabs",
			Execute: func() (interface{}, error) {
				return analytics.GetTopTabsInTimeFrame(db, params)
			},
		},
		{
			Name: "topCountries",
			Execute: func() (interface{}, error) {
				stats, err := analytics.GetTopCountriesInTimeFrame(db, params)
				if err != nil {
					return nil, err
				}
				return convertCountryStats(stats), nil
			},
		},
		{
			Name: "topDevices",
			Execute: func() (interface{}, error) {
				stats, err := analytics.GetTopDeviceTypesInTimeFrame(db, params)
				if err != nil {
					return nil, err
				}
				return convertDeviceStats(stats), nil
			},
		},
		{
			Name: "topOperatingSystems",
			Execute: func() (interface{}, error) {
				stats, err := analytics.GetTopOperatingSystemsInTimeFrame(db, params)
				if err != nil {
					return nil, err
				}
				return convertOSStats(stats), nil
			},
		},
		{
			Name: "apps",
			Execute: func() (interface{}, error) {
				return analytics.GetAppSummaries(db, params)
			},
		},
		{
			Name: "versions",
			Execute: func() (interface{}, error) {
				return analytics.GetVersionSummaries(db, params)
			},
		},
		{
			Name: "connections",
			Execute: func() (interface{}, error) {
				return analytics.GetConnectionBreakdown(db, params)
			},
		},
		{
			Name: "usageHeatmap",
			Execute: func() (interface{}, error) {
				return analytics.GetHourlyUsageHeatmap(db, params)
			},
		},
		{
			Name: "durationHistogram",
			Execute: func() (interface{}, error) {
				return analytics.GetSessionDurationHistogram(db, params)
			},
		},
		{
			Name: "userFlow",
			Execute: func() (interface{}, error) {
				return analytics.GetUserFlowData(db, params)
			},
		},
		{
			Name: "geoPerformance",
			Execute: func() (interface{}, error) {
				return analytics.GetGeoPerformance(db, params)
			},
		},
	}

	pool := async.NewPool(8)
	results := pool.Execute(context.Background(), tasks)

	for name, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("error fetching %s: %w", name, result.Err)
		}
	}

	activeUsers := results["activeUsers"].Data.([]timeframe.DateStat)
	seriesByApp := results["activeUsersByApp"].Data.(map[string][]timeframe.DateStat)

	convertedByApp := make(map[string][]TimeSeriesPoint, len(seriesByApp))
	for appName, stats := range seriesByApp {
		convertedByApp[appName] = convertToTimeSeries(stats)
	}

	resp := &DashboardResponse{
		Totals:              results["totals"].Data.(analytics.Totals),
		ActiveUsers:         convertToTimeSeries(activeUsers),
		ActiveUsersByApp:    convertedByApp,
		ActiveUsersTrend:    params.TimeFrame.CalculateTrend(activeUsers),
		TopPages:            getMetricResultsOrEmpty(results, "topPages"),
		TopWidgets:          getMetricResultsOrEmpty(results, "topWidgets"),
		TopScreens:          getMetricResultsOrEmpty(results, "topScreens"),
		TopTabs:             getMetricResultsOrEmpty(results, "topTabs"),
		TopCountries:        getMetricResultsOrEmpty(results, "topCountries"),
		TopDevices:          getMetricResultsOrEmpty(results, "topDevices"),
		TopOperatingSystems: getMetricResultsOrEmpty(results, "topOperatingSystems"),
		Apps:                results["apps"].Data.([]analytics.AppSummary),
		Versions:            results["versions"].Data.([]analytics.VersionSummary),
		Connections:         results["connections"].Data.([]analytics.ConnectionSummary),
		UsageHeatmap:        results["usageHeatmap"].Data.([]analytics.HeatmapCell),
		DurationHistogram:   results["durationHistogram"].Data.([]analytics.DurationBucket),
		UserFlow:            results["userFlow"].Data.([]analytics.UserFlowLink),
		GeoPerformance:      results["geoPerformance"].Data.([]analytics.GeoSummary),
		BucketSize:          string(params.TimeFrame.BucketSize),
		From:                params.TimeFrame.From.UTC().Format(timeframe.DateOnlyLayout),
		To:                  params.TimeFrame.To.UTC().Format(timeframe.DateOnlyLayout),
	}

	return resp, nil
}

func convertToTimeSeries(stats []timeframe.DateStat) []TimeSeriesPoint {
	result := make([]TimeSeriesPoint, len(stats))
	for i, stat := range stats {
		result[i] = TimeSeriesPoint{
			Date:  stat.Date,
			Count: stat.Count,
		}
	}
	return result
}

// convertCountryStats normalizes geoip country names onto their common
// English names, falling back to title case for names gountries does not
// know.
func convertCountryStats(items []analytics.MetricCountResult) []analytics.MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)
	countries := gountries.New()

	if len(items) == 0 {
		return []analytics.MetricCountResult{}
	}

	result := make([]analytics.MetricCountResult, len(items))
	for i, item := range items {
		country, err := countries.FindCountryByName(item.Name)
		if err != nil {
			result[i] = analytics.MetricCountResult{
				Name:  caser.String(item.Name),
				Count: item.Count,
			}
		} else {
			result[i] = analytics.MetricCountResult{
				Name:  country.Name.Common,
				Count: item.Count,
			}
		}
	}
	return result
}

func convertDeviceStats(items []analytics.MetricCountResult) []analytics.MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)

	if len(items) == 0 {
		return []analytics.MetricCountResult{}
	}

	result := make([]analytics.MetricCountResult, len(items))
	for i, item := range items {
		result[i] = analytics.MetricCountResult{
			Name:  caser.String(item.Name),
			Count: item.Count,
		}
	}
	return result
}

func convertOSStats(items []analytics.MetricCountResult) []analytics.MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)

	if len(items) == 0 {
		return []analytics.MetricCountResult{}
	}

	result := make([]analytics.MetricCountResult, len(items))
	for i, item := range items {
		name := item.Name

		// iOS and macOS need their vendor capitalization preserved.
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "ios", "iphone os":
			name = "iOS"
		case "ipados":
			name = "iPadOS"
		case "macos", "mac os", "mac os x", "darwin":
			name = "MacOS"
		default:
			name = caser.String(name)
		}
		result[i] = analytics.MetricCountResult{
			Name:  name,
			Count: item.Count,
		}
	}
	return result
}

func getMetricResultsOrEmpty(results map[string]async.Result, name string) []analytics.MetricCountResult {
	if result, exists := results[name]; exists {
		if result.Data != nil {
			if items, ok := result.Data.([]analytics.MetricCountResult); ok && items != nil {
				return items
			}
		}
	}
	return []analytics.MetricCountResult{}
}
