// Package timeframe models the inclusive date ranges the dashboard filters
// by and the bucket sizes its time series are grouped into.
//
// The export data carries UTC timestamps and the dashboard is date-based, so
// everything here works in UTC.
package timeframe

import (
	"fmt"
	"time"
)

// DateStat is one bucketed count in a time series.
type DateStat struct {
	Date  string
	Count int
}

// TimeFrameBucketSize enumerates the supported series granularities.
type TimeFrameBucketSize string

const (
	TimeFrameBucketSizeYear  TimeFrameBucketSize = "year"
	TimeFrameBucketSizeMonth TimeFrameBucketSize = "month"
	TimeFrameBucketSizeWeek  TimeFrameBucketSize = "week"
	TimeFrameBucketSizeDay   TimeFrameBucketSize = "day"
	TimeFrameBucketSizeHour  TimeFrameBucketSize = "hour"
)

// TimeFrame represents a period between two points in time.
type TimeFrame struct {
	From       time.Time
	To         time.Time
	BucketSize TimeFrameBucketSize
}

// DatePointsOfReference pairs the SQLite bucket key with the user-facing
// label for one expected series point.
type DatePointsOfReference struct {
	SQLiteBucketTimeFormat string
	UserFacingTimeFormat   string
}

// DateOnlyLayout is the wire format of the from/to filter parameters.
const DateOnlyLayout = "2006-01-02"

// NewTimeFrame builds a frame over [from, to] with an explicit bucket size.
func NewTimeFrame(from, to time.Time, bucketSize TimeFrameBucketSize) (*TimeFrame, error) {
	if from.After(to) {
		return nil, fmt.Errorf("fromTime must be before toTime")
	}
	return &TimeFrame{
		From:       from.UTC(),
		To:         to.UTC(),
		BucketSize: bucketSize,
	}, nil
}

// NewAutoTimeFrame builds a frame with a bucket size appropriate for the
// range length.
func NewAutoTimeFrame(from, to time.Time) (*TimeFrame, error) {
	return NewTimeFrame(from, to, GetAppropriateBucketSize(from, to))
}

// ParseDateRange parses inclusive from/to date parameters into a frame.
// Either bound may be empty, in which case the fallback bound is used.
func ParseDateRange(fromDate, toDate string, fallbackFrom, fallbackTo time.Time) (*TimeFrame, error) {
	from := fallbackFrom.UTC()
	to := fallbackTo.UTC()

	if fromDate != "" {
		parsed, err := time.Parse(DateOnlyLayout, fromDate)
		if err != nil {
			return nil, fmt.Errorf("invalid 'from' date: %w", err)
		}
		from = parsed
	}

	if toDate != "" {
		parsed, err := time.Parse(DateOnlyLayout, toDate)
		if err != nil {
			return nil, fmt.Errorf("invalid 'to' date: %w", err)
		}
		// Inclusive upper bound: extend to the end of the day.
		to = parsed.Add(24*time.Hour - time.Second)
	}

	return NewAutoTimeFrame(from, to)
}

// GetAppropriateBucketSize picks a series granularity for a range length.
func GetAppropriateBucketSize(from, to time.Time) TimeFrameBucketSize {
	days := to.Sub(from).Hours() / 24

	switch {
	case days >= 5*365:
		return TimeFrameBucketSizeYear
	case days >= 3*30:
		return TimeFrameBucketSizeMonth
	case days >= 2:
		return TimeFrameBucketSizeDay
	default:
		return TimeFrameBucketSizeHour
	}
}

// Duration returns the length of the frame.
func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Validate checks the frame bounds.
func (tf *TimeFrame) Validate() error {
	if tf.From.After(tf.To) {
		return fmt.Errorf("fromTime must be before toTime")
	}
	return nil
}

// GetSQLiteGroupByExpression returns the SQLite expression that groups the
// given timestamp column into this frame's buckets.
func (tf *TimeFrame) GetSQLiteGroupByExpression(column string) (string, error) {
	switch tf.BucketSize {
	case TimeFrameBucketSizeHour:
		return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H', %s)", column), nil
	case TimeFrameBucketSizeDay:
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column), nil
	case TimeFrameBucketSizeWeek:
		// Monday-based week start
		return fmt.Sprintf("date(%s, 'start of day', '-' || ((strftime('%%w', %s) + 6) %% 7) || ' days')", column, column), nil
	case TimeFrameBucketSizeMonth:
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", column), nil
	case TimeFrameBucketSizeYear:
		return fmt.Sprintf("strftime('%%Y', %s)", column), nil
	default:
		return "", fmt.Errorf("unsupported time frame bucket size: %v", tf.BucketSize)
	}
}

// GenerateDateTimePointsReference enumerates every bucket the frame covers,
// with the SQLite key and the user-facing label for each.
func (tf *TimeFrame) GenerateDateTimePointsReference() []DatePointsOfReference {
	datePoints := []DatePointsOfReference{}

	currentTime := truncateToBucket(tf.From, tf.BucketSize)
	endTime := tf.To

	// Safety bound against runaway ranges.
	maxPoints := 1000

	for pointCount := 0; pointCount < maxPoints; pointCount++ {
		if currentTime.After(endTime) {
			break
		}

		var sqliteBucketFormat string
		switch tf.BucketSize {
		case TimeFrameBucketSizeYear:
			sqliteBucketFormat = currentTime.Format("2006")
		case TimeFrameBucketSizeMonth:
			sqliteBucketFormat = currentTime.Format("2006-01")
		case TimeFrameBucketSizeWeek, TimeFrameBucketSizeDay:
			sqliteBucketFormat = currentTime.Format("2006-01-02")
		case TimeFrameBucketSizeHour:
			sqliteBucketFormat = currentTime.Format("2006-01-02 15")
		}

		datePoints = append(datePoints, DatePointsOfReference{
			SQLiteBucketTimeFormat: sqliteBucketFormat,
			UserFacingTimeFormat:   currentTime.Format(time.RFC3339),
		})

		switch tf.BucketSize {
		case TimeFrameBucketSizeYear:
			currentTime = currentTime.AddDate(1, 0, 0)
		case TimeFrameBucketSizeMonth:
			currentTime = currentTime.AddDate(0, 1, 0)
		case TimeFrameBucketSizeWeek:
			currentTime = currentTime.AddDate(0, 0, 7)
		case TimeFrameBucketSizeDay:
			currentTime = currentTime.AddDate(0, 0, 1)
		case TimeFrameBucketSizeHour:
			currentTime = currentTime.Add(time.Hour)
		}
	}

	return datePoints
}

// BuildTimeSeriesPoints zero-fills grouped query results onto the frame's
// full set of expected buckets.
func (tf *TimeFrame) BuildTimeSeriesPoints(groupedResults []DateStat) []DateStat {
	dateLabels := tf.GenerateDateTimePointsReference()
	results := make([]DateStat, len(dateLabels))

	resultsMap := make(map[string]int, len(groupedResults))
	for _, result := range groupedResults {
		resultsMap[tf.normalizeDBDateFormat(result.Date)] = result.Count
	}

	for i, datePoint := range dateLabels {
		count := 0
		if val, exists := resultsMap[tf.normalizeDBDateFormat(datePoint.SQLiteBucketTimeFormat)]; exists {
			count = val
		}
		results[i] = DateStat{
			Date:  datePoint.UserFacingTimeFormat,
			Count: count,
		}
	}

	return results
}

// normalizeDBDateFormat standardizes date formats for consistent lookups
func (tf *TimeFrame) normalizeDBDateFormat(dateStr string) string {
	switch tf.BucketSize {
	case TimeFrameBucketSizeHour:
		if len(dateStr) >= 13 {
			return dateStr[:13]
		}
	case TimeFrameBucketSizeDay, TimeFrameBucketSizeWeek:
		if len(dateStr) >= 10 {
			return dateStr[:10]
		}
	case TimeFrameBucketSizeMonth:
		if len(dateStr) >= 7 {
			return dateStr[:7]
		}
	case TimeFrameBucketSizeYear:
		if len(dateStr) >= 4 {
			return dateStr[:4]
		}
	}
	return dateStr
}

// CalculateTrend fits a least-squares line through the series and returns
// its slope.
func (tf *TimeFrame) CalculateTrend(points []DateStat) float64 {
	if len(points) < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(points))

	for i, point := range points {
		x := float64(i)
		y := float64(point.Count)

		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	return (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
}

func truncateToBucket(t time.Time, bucketSize TimeFrameBucketSize) time.Time {
	utc := t.UTC()
	year, month, day := utc.Year(), utc.Month(), utc.Day()

	switch bucketSize {
	case TimeFrameBucketSizeYear:
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeWeek:
		weekday := int(utc.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return time.Date(year, month, day-(weekday-1), 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeHour:
		return time.Date(year, month, day, utc.Hour(), 0, 0, 0, time.UTC)
	default:
		return utc
	}
}
