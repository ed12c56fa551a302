package analytics

import (
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// GetAppSummaries builds the per-app comparison table. Only apps with events
// in the filtered set appear; apps whose sessions all lack a session id get
// zero session counts and rates.
func GetAppSummaries(db *gorm.DB, params QueryParams) ([]AppSummary, error) {
	eventWhere, eventArgs := params.eventFilterSQL()

	eventQuery := fmt.Sprintf(`
    SELECT
        app_name,
        COUNT(DISTINCT distinct_id) as users,
        COUNT(*) as events,
        COALESCE(AVG(CASE WHEN duration > 0 THEN duration END), 0) as avg_duration
    FROM events
    WHERE %s
    GROUP BY app_name
    `, eventWhere)

	var eventRows []struct {
		AppName     string
		Users       int64
		Events      int64
		AvgDuration float64
	}
	if err := db.Raw(eventQuery, eventArgs...).Scan(&eventRows).Error; err != nil {
		return nil, fmt.Errorf("error fetching per-app event summaries: %w", err)
	}

	sessionWhere, sessionArgs := params.sessionFilterSQL()
	sessionQuery := fmt.Sprintf(`
    SELECT
        app_name,
        COUNT(*) as sessions,
        COALESCE(AVG(bounce), 0) as bounce_rate,
        COALESCE(AVG(completed), 0) as completion_rate
    FROM sessions
    WHERE %s
    GROUP BY app_name
    `, sessionWhere)

	var sessionRows []struct {
		AppName        string
		Sessions       int64
		BounceRate     float64
		CompletionRate float64
	}
	if err := db.Raw(sessionQuery, sessionArgs...).Scan(&sessionRows).Error; err != nil {
		return nil, fmt.Errorf("error fetching per-app session summaries: %w", err)
	}

	sessionsByApp := make(map[string]struct {
		Sessions       int64
		BounceRate     float64
		CompletionRate float64
	}, len(sessionRows))
	for _, r := range sessionRows {
		sessionsByApp[r.AppName] = struct {
			Sessions       int64
			BounceRate     float64
			CompletionRate float64
		}{r.Sessions, r.BounceRate, r.CompletionRate}
	}

	summaries := make([]AppSummary, 0, len(eventRows))
	for _, r := range eventRows {
		summary := AppSummary{
			AppName:     r.AppName,
			Users:       r.Users,
			Events:      r.Events,
			AvgDuration: r.AvgDuration,
		}
		if s, ok := sessionsByApp[r.AppName]; ok {
			summary.Sessions = s.Sessions
			summary.BounceRate = s.BounceRate
			summary.CompletionRate = s.CompletionRate
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Users != summaries[j].Users {
			return summaries[i].Users > summaries[j].Users
		}
		return summaries[i].AppName < summaries[j].AppName
	})

	return summaries, nil
}

// GetVersionSummaries aggregates usage per (app, version), skipping events
// that carry no version property.
func GetVersionSummaries(db *gorm.DB, params QueryParams) ([]VersionSummary, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        app_name,
        app_version,
        COUNT(DISTINCT distinct_id) as users,
        COUNT(*) as events,
        COALESCE(AVG(CASE WHEN duration > 0 THEN duration END), 0) as avg_duration
    FROM events
    WHERE %s
    AND app_version != ''
    GROUP BY app_name, app_version
    ORDER BY app_name ASC, users DESC
    LIMIT ?
    `, where)

	var results []VersionSummary
	args = append(args, params.Limit)
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching version summaries: %w", err)
	}

	return results, nil
}

// GetConnectionBreakdown counts events by network type per app. Events
// without the wifi property fall into the unknown column.
func GetConnectionBreakdown(db *gorm.DB, params QueryParams) ([]ConnectionSummary, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        app_name,
        SUM(CASE WHEN network_wifi = 1 THEN 1 ELSE 0 END) as wifi,
        SUM(CASE WHEN network_wifi = 0 THEN 1 ELSE 0 END) as cellular,
        SUM(CASE WHEN network_wifi IS NULL THEN 1 ELSE 0 END) as unknown
    FROM events
    WHERE %s
    GROUP BY app_name
    ORDER BY app_name ASC
    `, where)

	var results []ConnectionSummary
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching connection breakdown: %w", err)
	}

	return results, nil
}
