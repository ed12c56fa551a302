package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// GetTopCountriesInTimeFrame ranks countries by unique users.
func GetTopCountriesInTimeFrame(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return topUsersByColumn(db, params, "country", "top countries")
}

// GetTopDeviceTypesInTimeFrame ranks device types by unique users.
func GetTopDeviceTypesInTimeFrame(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return topUsersByColumn(db, params, "device_type", "top device types")
}

// topUsersByColumn ranks a single event column by unique users, skipping
// rows where the column is empty.
func topUsersByColumn(db *gorm.DB, params QueryParams, column, what string) ([]MetricCountResult, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        %s as name,
        COUNT(DISTINCT distinct_id) as count
    FROM events
    WHERE %s
    AND %s != ''
    GROUP BY %s
    HAVING count > 0
    ORDER BY count DESC
    LIMIT ?
    `, column, where, column, column)

	var results []MetricCountResult
	args = append(args, params.Limit)
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", what, err)
	}

	return results, nil
}

// GetTopOperatingSystemsInTimeFrame ranks operating systems by unique users.
// Vendor spellings are folded onto canonical names before grouping.
func GetTopOperatingSystemsInTimeFrame(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        CASE
            WHEN LOWER(operating_system) LIKE '%%mac%%' OR LOWER(operating_system) LIKE '%%darwin%%' THEN 'MacOS'
            WHEN LOWER(operating_system) LIKE '%%ios%%' OR LOWER(operating_system) LIKE '%%iphone os%%' THEN 'iOS'
            WHEN LOWER(operating_system) LIKE '%%android%%' THEN 'Android'
            WHEN LOWER(operating_system) LIKE '%%windows%%' THEN 'Windows'
            WHEN LOWER(operating_system) LIKE '%%linux%%' THEN 'Linux'
            ELSE operating_system
        END as name,
        COUNT(DISTINCT distinct_id) as count
    FROM events
    WHERE %s
    AND operating_system != ''
    GROUP BY name
    HAVING count > 0
    ORDER BY count DESC
    LIMIT ?
    `, where)

	var results []MetricCountResult
	args = append(args, params.Limit)
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching top operating systems: %w", err)
	}

	return results, nil
}

// GetTopPagesInTimeFrame ranks page names by event count.
func GetTopPagesInTimeFrame(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return topEventsByColumn(db, params, "page_name", "top pages")
}

// GetTopWidgetsInTimeFrame ranks widget names by event count.
func GetTopWidgetsInTimeFrame(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return topEventsByColumn(db, params, "widget_name", "top widgets")
}

// GetTopScreensInTimeFrame ranks screen names by event count.
func GetTopScreensInTimeFrame(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return topEventsByColumn(db, params, "screen_name", "top screens")
}

// GetTopTabsInTimeFrame ranks tab names by event count.
func GetTopTabsInTimeFrame(db *gorm.DB, params QueryParams) ([]MetricCountResult, error) {
	return topEventsByColumn(db, params, "tab_name", "top tabs")
}

// topEventsByColumn ranks a single event column by event volume, skipping
// rows where the column is empty.
func topEventsByColumn(db *gorm.DB, params QueryParams, column, what string) ([]MetricCountResult, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        %s as name,
        COUNT(*) as count
    FROM events
    WHERE %s
    AND %s != ''
    GROUP BY %s
    HAVING count > 0
    ORDER BY count DESC
    LIMIT ?
    `, column, where, column, column)

	var results []MetricCountResult
	args = append(args, params.Limit)
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", what, err)
	}

	return results, nil
}
