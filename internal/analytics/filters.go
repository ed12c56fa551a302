package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"gorm.io/gorm"
)

// FilterOptions lists the selectable values for the dashboard filters.
type FilterOptions struct {
	Apps      []string `json:"apps"`
	Devices   []string `json:"devices"`
	Countries []string `json:"countries"`
}

var filterOptionsCache *cache.Cache[string, []string]

var filterOptionQueries = map[string]string{
	"apps":      "SELECT DISTINCT app_name FROM events ORDER BY app_name ASC",
	"devices":   "SELECT DISTINCT device_type FROM events WHERE device_type != '' ORDER BY device_type ASC",
	"countries": "SELECT DISTINCT country FROM events WHERE country != '' ORDER BY country ASC",
}

// InitFilterCache wires the filter option cache to a connection. Options
// change only on re-import, so a short TTL keeps them effectively fresh.
func InitFilterCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		query, ok := filterOptionQueries[key]
		if !ok {
			return nil, fmt.Errorf("unknown filter option key: %s", key)
		}
		var values []string
		err := dbConn.WithContext(context.Background()).Raw(query).Scan(&values).Error
		if err != nil {
			return nil, err
		}
		return values, nil
	}
	filterOptionsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}

// ClearFilterCache drops cached filter options, e.g. after a re-import.
func ClearFilterCache() {
	if filterOptionsCache != nil {
		filterOptionsCache.Clear()
	}
}

// GetFilterOptions returns the distinct filter values present in the data.
func GetFilterOptions(db *gorm.DB) (FilterOptions, error) {
	var options FilterOptions

	apps, err := getFilterOption(db, "apps")
	if err != nil {
		return options, err
	}
	devices, err := getFilterOption(db, "devices")
	if err != nil {
		return options, err
	}
	countries, err := getFilterOption(db, "countries")
	if err != nil {
		return options, err
	}

	options.Apps = apps
	options.Devices = devices
	options.Countries = countries
	return options, nil
}

func getFilterOption(db *gorm.DB, key string) ([]string, error) {
	if filterOptionsCache != nil {
		values, err := filterOptionsCache.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch filter options: %w", err)
		}
		return values, nil
	}

	// Cache not initialized (tests): query directly.
	var values []string
	if err := db.Raw(filterOptionQueries[key]).Scan(&values).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch filter options: %w", err)
	}
	return values, nil
}
