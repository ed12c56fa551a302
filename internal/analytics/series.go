package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"appinsights/internal/timeframe"
)

// AggregatedActiveUsersInTimeFrame returns the unique-user series bucketed
// by the frame's granularity, zero-filled over the whole range.
func AggregatedActiveUsersInTimeFrame(db *gorm.DB, params QueryParams) ([]timeframe.DateStat, error) {
	groupBy, err := params.TimeFrame.GetSQLiteGroupByExpression("timestamp")
	if err != nil {
		return nil, err
	}

	where, args := params.eventFilterSQL()
	query := fmt.Sprintf(`
    SELECT
        %s as date,
        COUNT(DISTINCT distinct_id) as count
    FROM events
    WHERE %s
    GROUP BY date
    ORDER BY date ASC
    `, groupBy, where)

	var grouped []timeframe.DateStat
	if err := db.Raw(query, args...).Scan(&grouped).Error; err != nil {
		return nil, fmt.Errorf("error fetching active user series: %w", err)
	}

	return params.TimeFrame.BuildTimeSeriesPoints(grouped), nil
}

// GetActiveUserSeriesByApp returns one zero-filled unique-user series per
// app in the filtered set.
func GetActiveUserSeriesByApp(db *gorm.DB, params QueryParams) (map[string][]timeframe.DateStat, error) {
	groupBy, err := params.TimeFrame.GetSQLiteGroupByExpression("timestamp")
	if err != nil {
		return nil, err
	}

	where, args := params.eventFilterSQL()
	query := fmt.Sprintf(`
    SELECT
        app_name,
        %s as date,
        COUNT(DISTINCT distinct_id) as count
    FROM events
    WHERE %s
    GROUP BY app_name, date
    ORDER BY app_name ASC, date ASC
    `, groupBy, where)

	var rows []struct {
		AppName string
		Date    string
		Count   int
	}
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching per-app active user series: %w", err)
	}

	groupedByApp := make(map[string][]timeframe.DateStat)
	for _, r := range rows {
		groupedByApp[r.AppName] = append(groupedByApp[r.AppName], timeframe.DateStat{Date: r.Date, Count: r.Count})
	}

	series := make(map[string][]timeframe.DateStat, len(groupedByApp))
	for appName, grouped := range groupedByApp {
		series[appName] = params.TimeFrame.BuildTimeSeriesPoints(grouped)
	}

	return series, nil
}

// GetHourlyUsageHeatmap counts events per (day of week, hour of day) cell.
// Cells with no events are omitted.
func GetHourlyUsageHeatmap(db *gorm.DB, params QueryParams) ([]HeatmapCell, error) {
	where, args := params.eventFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        CAST(strftime('%%w', timestamp) AS INTEGER) as weekday,
        CAST(strftime('%%H', timestamp) AS INTEGER) as hour,
        COUNT(*) as count
    FROM events
    WHERE %s
    GROUP BY weekday, hour
    ORDER BY weekday ASC, hour ASC
    `, where)

	var results []HeatmapCell
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching hourly usage heatmap: %w", err)
	}

	return results, nil
}

// GetSessionDurationHistogram buckets sessions by duration.
func GetSessionDurationHistogram(db *gorm.DB, params QueryParams) ([]DurationBucket, error) {
	where, args := params.sessionFilterSQL()

	query := fmt.Sprintf(`
    SELECT
        CASE
            WHEN duration < 10 THEN '0-10s'
            WHEN duration < 30 THEN '10-30s'
            WHEN duration < 60 THEN '30-60s'
            WHEN duration < 180 THEN '1-3m'
            WHEN duration < 600 THEN '3-10m'
            ELSE '10m+'
        END as label,
        COUNT(*) as count
    FROM sessions
    WHERE %s
    GROUP BY label
    ORDER BY MIN(duration) ASC
    `, where)

	var results []DurationBucket
	if err := db.Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching session duration histogram: %w", err)
	}

	return results, nil
}

// GetEventTimeRange returns the min and max event timestamps, optionally
// scoped to an app subset. Used to default the dashboard's time frame to
// the imported data's actual span.
func GetEventTimeRange(db *gorm.DB, apps []string) (time.Time, time.Time, error) {
	query := "SELECT MIN(timestamp) as min_ts, MAX(timestamp) as max_ts FROM events"
	var args []interface{}
	if len(apps) > 0 {
		query += " WHERE app_name IN ?"
		args = append(args, apps)
	}

	var row struct {
		MinTs *time.Time
		MaxTs *time.Time
	}
	if err := db.Raw(query, args...).Scan(&row).Error; err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("error fetching event time range: %w", err)
	}

	if row.MinTs == nil || row.MaxTs == nil {
		now := time.Now().UTC()
		return now.AddDate(0, 0, -30), now, nil
	}

	return row.MinTs.UTC(), row.MaxTs.UTC(), nil
}
