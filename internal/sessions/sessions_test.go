package sessions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appinsights/internal/sessions"
	"appinsights/internal/testsupport"
)

func TestRebuildSessionsAggregation(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	base := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	// One session with increasing duration snapshots: the session duration is
	// the maximum reported value, not the sum.
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		{App: "BPS", User: "alice", Session: "s1", Duration: 10, Page: "Home", Device: "Mobile", OS: "iOS", Country: "Spain", Version: "2.1.0", Timestamp: base},
		{App: "BPS", User: "alice", Session: "s1", Duration: 45, Page: "Home", Timestamp: base.Add(20 * time.Second)},
		{App: "BPS", User: "alice", Session: "s1", Duration: 45, Page: "Settings", Timestamp: base.Add(40 * time.Second)},
	})

	count, err := sessions.RebuildSessions(dbManager, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var session sessions.Session
	require.NoError(t, db.First(&session, "app_name = ? AND session_id = ?", "BPS", "s1").Error)

	assert.Equal(t, "alice", session.DistinctID)
	assert.Equal(t, 45, session.Duration)
	assert.Equal(t, 3, session.EventCount)
	assert.Equal(t, "Home", session.PrimaryPage)
	assert.False(t, session.Bounce)
	assert.False(t, session.Completed)

	// Attributes come from the session's first event.
	assert.Equal(t, "Mobile", session.DeviceType)
	assert.Equal(t, "iOS", session.OperatingSystem)
	assert.Equal(t, "Spain", session.Country)
	assert.Equal(t, "2.1.0", session.AppVersion)

	assert.Equal(t, base, session.FirstSeen.UTC())
	assert.Equal(t, base.Add(40*time.Second), session.LastSeen.UTC())
}

func TestRebuildSessionsThresholds(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	base := time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC)
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		// Missing duration property defaults to zero: a bounce.
		{App: "BPS", User: "u1", Session: "bounce", Duration: 0, Timestamp: base},
		// Exactly at the bounce threshold is not a bounce.
		{App: "BPS", User: "u2", Session: "edge-30", Duration: 30, Timestamp: base},
		// Exactly at the completion threshold is not completed.
		{App: "BPS", User: "u3", Session: "edge-60", Duration: 60, Timestamp: base},
		{App: "BPS", User: "u4", Session: "long", Duration: 61, Timestamp: base},
	})

	_, err := sessions.RebuildSessions(dbManager, logger)
	require.NoError(t, err)

	expectations := map[string]struct {
		bounce    bool
		completed bool
	}{
		"bounce":  {bounce: true, completed: false},
		"edge-30": {bounce: false, completed: false},
		"edge-60": {bounce: false, completed: false},
		"long":    {bounce: false, completed: true},
	}

	for sessionID, want := range expectations {
		var session sessions.Session
		require.NoError(t, db.First(&session, "session_id = ?", sessionID).Error)
		assert.Equal(t, want.bounce, session.Bounce, "bounce for %s", sessionID)
		assert.Equal(t, want.completed, session.Completed, "completed for %s", sessionID)
	}
}

func TestRebuildSessionsKeyedByApp(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	base := time.Date(2025, 4, 4, 8, 0, 0, 0, time.UTC)

	// The same session id in two apps yields two distinct sessions.
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		{App: "BPS", User: "u1", Session: "shared", Duration: 5, Timestamp: base},
		{App: "Lineup", User: "u2", Session: "shared", Duration: 90, Timestamp: base},
		// Events without a session id never form sessions.
		{App: "BPS", User: "u3", Session: "", Duration: 500, Timestamp: base},
	})

	count, err := sessions.RebuildSessions(dbManager, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var bps, lineup sessions.Session
	require.NoError(t, db.First(&bps, "app_name = ?", "BPS").Error)
	require.NoError(t, db.First(&lineup, "app_name = ?", "Lineup").Error)
	assert.True(t, bps.Bounce)
	assert.True(t, lineup.Completed)
}

func TestRebuildSessionsPrimaryPageTieBreak(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	base := time.Date(2025, 4, 5, 8, 0, 0, 0, time.UTC)
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		// Two pages tie on frequency; the earlier one wins. Empty page names
		// never count toward the primary page.
		{App: "etam", User: "u1", Session: "s1", Page: "Catalog", Duration: 40, Timestamp: base},
		{App: "etam", User: "u1", Session: "s1", Page: "", Duration: 40, Timestamp: base.Add(5 * time.Second)},
		{App: "etam", User: "u1", Session: "s1", Page: "Checkout", Duration: 40, Timestamp: base.Add(10 * time.Second)},
	})

	_, err := sessions.RebuildSessions(dbManager, logger)
	require.NoError(t, err)

	var session sessions.Session
	require.NoError(t, db.First(&session, "session_id = ?", "s1").Error)
	assert.Equal(t, "Catalog", session.PrimaryPage)
	assert.Equal(t, 3, session.EventCount)
}

func TestRebuildSessionsIsIdempotent(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	base := time.Date(2025, 4, 6, 8, 0, 0, 0, time.UTC)
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		{App: "bspace", User: "u1", Session: "s1", Duration: 20, Timestamp: base},
		{App: "bspace", User: "u2", Session: "s2", Duration: 70, Timestamp: base},
	})

	first, err := sessions.RebuildSessions(dbManager, logger)
	require.NoError(t, err)
	second, err := sessions.RebuildSessions(dbManager, logger)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	total, err := sessions.GetSessionCount(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	perApp, err := sessions.GetSessionCountForApp(db, "bspace")
	require.NoError(t, err)
	assert.Equal(t, int64(2), perApp)
}
