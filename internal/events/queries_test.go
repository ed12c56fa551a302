package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appinsights/internal/events"
	"appinsights/internal/testsupport"
)

func TestGetFilteredEvents(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		{App: "BPS", User: "alice", Session: "s1", Page: "Home", Device: "Mobile", Country: "Spain", Timestamp: base},
		{App: "BPS", User: "bob", Session: "s2", Page: "Settings", Device: "Desktop", Country: "France", Timestamp: base.Add(time.Hour)},
		{App: "Lineup", User: "carol", Session: "s3", Page: "Home", Device: "Mobile", Country: "Spain", Timestamp: base.Add(2 * time.Hour)},
		{App: "etam", User: "dave", Session: "s4", Page: "Checkout", Device: "Tablet", Country: "Spain", Timestamp: base.AddDate(0, 0, 5)},
	})

	from := base.Add(-time.Hour)
	to := base.Add(3 * time.Hour)

	t.Run("filters by time range", func(t *testing.T) {
		result, err := events.GetFilteredEvents(db, events.EventFilters{
			FromDate: from,
			ToDate:   to,
			Limit:    10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Total)
		assert.Len(t, result.Events, 3)
	})

	t.Run("filters by app and device", func(t *testing.T) {
		result, err := events.GetFilteredEvents(db, events.EventFilters{
			FromDate: from,
			ToDate:   to,
			Apps:     []string{"BPS"},
			Devices:  []string{"Mobile"},
			Limit:    10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Total)
		require.Len(t, result.Events, 1)
		assert.Equal(t, "alice", result.Events[0].DistinctID)
	})

	t.Run("page filter matches substrings", func(t *testing.T) {
		result, err := events.GetFilteredEvents(db, events.EventFilters{
			FromDate:   from,
			ToDate:     to,
			PageFilter: "ome",
			Limit:      10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), result.Total)
	})

	t.Run("newest first with pagination", func(t *testing.T) {
		page1, err := events.GetFilteredEvents(db, events.EventFilters{
			FromDate: from,
			ToDate:   to,
			Limit:    2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page1.Total)
		require.Len(t, page1.Events, 2)
		assert.Equal(t, "carol", page1.Events[0].DistinctID)

		page2, err := events.GetFilteredEvents(db, events.EventFilters{
			FromDate: from,
			ToDate:   to,
			Limit:    2,
			Offset:   2,
		})
		require.NoError(t, err)
		require.Len(t, page2.Events, 1)
		assert.Equal(t, "alice", page2.Events[0].DistinctID)
	})

	t.Run("per app counts", func(t *testing.T) {
		count, err := events.GetEventCountForApp(db, "BPS")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = events.GetEventCountForApp(db, "bspace")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}
