package analytics

import (
	"fmt"

	"gorm.io/gorm"
)

// GetTotalsInTimeFrame computes the headline KPIs for the current filters.
//
// Users, events and average duration come from the events table so users
// without a session id still count. Session counts and rates come from the
// sessions table. An empty filtered set yields all zeros.
func GetTotalsInTimeFrame(db *gorm.DB, params QueryParams) (Totals, error) {
	var totals Totals

	eventWhere, eventArgs := params.eventFilterSQL()
	eventQuery := fmt.Sprintf(`
    SELECT
        COUNT(DISTINCT distinct_id) as unique_users,
        COUNT(*) as total_events,
        COALESCE(AVG(CASE WHEN duration > 0 THEN duration END), 0) as avg_duration
    FROM events
    WHERE %s
    `, eventWhere)

	var eventRow struct {
		UniqueUsers int64
		TotalEvents int64
		AvgDuration float64
	}
	if err := db.Raw(eventQuery, eventArgs...).Scan(&eventRow).Error; err != nil {
		return totals, fmt.Errorf("error fetching event totals: %w", err)
	}

	sessionWhere, sessionArgs := params.sessionFilterSQL()
	sessionQuery := fmt.Sprintf(`
    SELECT
        COUNT(*) as unique_sessions,
        COALESCE(AVG(bounce), 0) as bounce_rate,
        COALESCE(AVG(completed), 0) as completion_rate
    FROM sessions
    WHERE %s
    `, sessionWhere)

	var sessionRow struct {
		UniqueSessions int64
		BounceRate     float64
		CompletionRate float64
	}
	if err := db.Raw(sessionQuery, sessionArgs...).Scan(&sessionRow).Error; err != nil {
		return totals, fmt.Errorf("error fetching session totals: %w", err)
	}

	totals.UniqueUsers = eventRow.UniqueUsers
	totals.TotalEvents = eventRow.TotalEvents
	totals.AvgDuration = eventRow.AvgDuration
	totals.UniqueSessions = sessionRow.UniqueSessions
	totals.BounceRate = sessionRow.BounceRate
	totals.CompletionRate = sessionRow.CompletionRate

	return totals, nil
}
