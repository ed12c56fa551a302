package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// GetGeoPerformance aggregates usage per (country, city) for the map view.
// Events without a country are left out; cities may be empty when only the
// country resolved.
func GetGeoPerformance(db *gorm.DB, params QueryParams) ([]GeoSummary, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        country,
        city,
        COUNT(DISTINCT distinct_id) as users,
        COUNT(*) as events,
        COALESCE(AVG(CASE WHEN duration > 0 THEN duration END), 0) as avg_duration,
        AVG(latitude) as latitude,
        AVG(longitude) as longitude
    FROM events
    WHERE %s
    AND country != ''
    GROUP BY country, city
    ORDER BY users DESC, events DESC
    LIMIT ?
    `, where)

	var results []GeoSummary
	args = append(args, params.Limit)
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching geo performance: %w", err)
	}

	return results, nil
}
