package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRangeInclusiveBounds(t *testing.T) {
	tf, err := ParseDateRange("2023-11-01", "2023-11-14", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC), tf.From)
	assert.Equal(t, time.Date(2023, 11, 14, 23, 59, 59, 0, time.UTC), tf.To)
	assert.Equal(t, TimeFrameBucketSizeDay, tf.BucketSize)
}

func TestParseDateRangeFallbacks(t *testing.T) {
	fallbackFrom := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	fallbackTo := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)

	tf, err := ParseDateRange("", "", fallbackFrom, fallbackTo)
	require.NoError(t, err)

	assert.Equal(t, fallbackFrom, tf.From)
	assert.Equal(t, fallbackTo, tf.To)
}

func TestParseDateRangeInvalid(t *testing.T) {
	_, err := ParseDateRange("not-a-date", "", time.Time{}, time.Now())
	assert.Error(t, err)

	_, err = ParseDateRange("", "14/11/2023", time.Time{}, time.Now())
	assert.Error(t, err)
}

func TestNewTimeFrameRejectsInvertedRange(t *testing.T) {
	from := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewTimeFrame(from, to, TimeFrameBucketSizeDay)
	assert.Error(t, err)
}

func TestGetAppropriateBucketSize(t *testing.T) {
	base := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		to       time.Time
		expected TimeFrameBucketSize
	}{
		{"one day", base.Add(24 * time.Hour), TimeFrameBucketSizeHour},
		{"two weeks", base.AddDate(0, 0, 14), TimeFrameBucketSizeDay},
		{"six months", base.AddDate(0, 6, 0), TimeFrameBucketSizeMonth},
		{"six years", base.AddDate(6, 0, 0), TimeFrameBucketSizeYear},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GetAppropriateBucketSize(base, tc.to))
		})
	}
}

func TestGetSQLiteGroupByExpression(t *testing.T) {
	tf := &TimeFrame{BucketSize: TimeFrameBucketSizeDay}
	expr, err := tf.GetSQLiteGroupByExpression("timestamp")
	require.NoError(t, err)
	assert.Equal(t, "strftime('%Y-%m-%d', timestamp)", expr)

	tf.BucketSize = TimeFrameBucketSizeHour
	expr, err = tf.GetSQLiteGroupByExpression("first_seen")
	require.NoError(t, err)
	assert.Equal(t, "strftime('%Y-%m-%d %H', first_seen)", expr)

	tf.BucketSize = "fortnight"
	_, err = tf.GetSQLiteGroupByExpression("timestamp")
	assert.Error(t, err)
}

func TestGenerateDateTimePointsReferenceDaily(t *testing.T) {
	tf, err := NewTimeFrame(
		time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 11, 3, 23, 59, 59, 0, time.UTC),
		TimeFrameBucketSizeDay,
	)
	require.NoError(t, err)

	points := tf.GenerateDateTimePointsReference()
	require.Len(t, points, 3)
	assert.Equal(t, "2023-11-01", points[0].SQLiteBucketTimeFormat)
	assert.Equal(t, "2023-11-03", points[2].SQLiteBucketTimeFormat)
}

func TestBuildTimeSeriesPointsZeroFills(t *testing.T) {
	tf, err := NewTimeFrame(
		time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 11, 5, 23, 59, 59, 0, time.UTC),
		TimeFrameBucketSizeDay,
	)
	require.NoError(t, err)

	grouped := []DateStat{
		{Date: "2023-11-02", Count: 4},
		{Date: "2023-11-05", Count: 9},
	}

	series := tf.BuildTimeSeriesPoints(grouped)
	require.Len(t, series, 5)

	counts := make([]int, len(series))
	for i, p := range series {
		counts[i] = p.Count
	}
	assert.Equal(t, []int{0, 4, 0, 0, 9}, counts)
}

func TestCalculateTrend(t *testing.T) {
	tf := &TimeFrame{BucketSize: TimeFrameBucketSizeDay}

	rising := []DateStat{{Count: 1}, {Count: 2}, {Count: 3}}
	assert.InDelta(t, 1.0, tf.CalculateTrend(rising), 0.001)

	flat := []DateStat{{Count: 5}, {Count: 5}, {Count: 5}}
	assert.InDelta(t, 0.0, tf.CalculateTrend(flat), 0.001)

	assert.Equal(t, 0.0, tf.CalculateTrend([]DateStat{{Count: 7}}))
}
