package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// GetUserFlowData returns the navigation flow links for the filtered set.
// Events carrying the route/prev_route pair are the primary source; when the
// filtered set has none (older exports predate route tracking), the flow is
// derived from the page sequence within each session instead.
func GetUserFlowData(db *gorm.DB, params QueryParams) ([]UserFlowLink, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        prev_route AS source,
        route AS target,
        COUNT(*) AS value
    FROM events
    WHERE %s
    AND route != ''
    AND prev_route != ''
    AND route != prev_route
    GROUP BY prev_route, route
    ORDER BY value DESC
    LIMIT ?
    `, where)

	var results []UserFlowLink
	args = append(args, params.Limit)
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching user flow data: %w", err)
	}

	if len(results) == 0 {
		return getUserFlowFromPageSequence(db, params)
	}

	return results, nil
}

// getUserFlowFromPageSequence derives flow links from consecutive page views
// within each session.
func getUserFlowFromPageSequence(db *gorm.DB, params QueryParams) ([]UserFlowLink, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    WITH ordered_pages AS (
        SELECT
            page_name,
            LEAD(page_name) OVER (
                PARTITION BY app_name, session_id
                ORDER BY timestamp
            ) AS next_page
        FROM events
        WHERE %s
        AND session_id != ''
        AND page_name != ''
    )
    SELECT
        page_name AS source,
        next_page AS target,
        COUNT(*) AS value
    FROM ordered_pages
    WHERE next_page IS NOT NULL
    AND next_page != ''
    AND next_page != page_name
    GROUP BY page_name, next_page
    ORDER BY value DESC
    LIMIT ?
    `, where)

	var results []UserFlowLink
	args = append(args, params.Limit)
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error deriving user flow from page sequence: %w", err)
	}

	return results, nil
}
