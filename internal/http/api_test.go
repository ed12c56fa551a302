package http_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appinsights/internal/testsupport"
)

func TestHealthEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestAPI(t, db)

	resp, err := app.Test(httptest.NewRequest("GET", "/_health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["db_status"])
}

func TestDashboardEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestAPI(t, db)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		{App: "BPS", User: "alice", Session: "s1", Duration: 20, Page: "Home", Device: "Mobile", Country: "Spain", Timestamp: base},
		{App: "Lineup", User: "bob", Session: "s2", Duration: 90, Page: "Feed", Device: "Desktop", Country: "France", Timestamp: base.Add(time.Hour)},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/dashboard?from=2025-06-01&to=2025-06-01", nil), 10000)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)

	var dashboard struct {
		Totals struct {
			UniqueUsers int64 `json:"unique_users"`
			TotalEvents int64 `json:"total_events"`
		} `json:"totals"`
		TopPages []struct {
			Name  string `json:"name"`
			Count int64  `json:"count"`
		} `json:"top_pages"`
		BucketSize string `json:"bucket_size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dashboard))

	assert.Equal(t, int64(2), dashboard.Totals.UniqueUsers)
	assert.Equal(t, int64(2), dashboard.Totals.TotalEvents)
	assert.Len(t, dashboard.TopPages, 2)
	assert.Equal(t, "hour", dashboard.BucketSize)
}

func TestDashboardRejectsInvalidDates(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestAPI(t, db)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/dashboard?from=junk", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 400, resp.StatusCode)
}

func TestEventsEndpointPaginates(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestAPI(t, db)

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	fixtures := make([]testsupport.EventFixture, 60)
	for i := range fixtures {
		fixtures[i] = testsupport.EventFixture{
			App:       "BPS",
			User:      "alice",
			Session:   "s1",
			Page:      "Home",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
	}
	testsupport.InsertEvents(t, db, fixtures)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/events?page=2", nil), 10000)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Events     []json.RawMessage `json:"events"`
		Pagination struct {
			CurrentPage int   `json:"current_page"`
			TotalPages  int   `json:"total_pages"`
			TotalItems  int64 `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 2, body.Pagination.CurrentPage)
	assert.Equal(t, 2, body.Pagination.TotalPages)
	assert.Equal(t, int64(60), body.Pagination.TotalItems)
	assert.Len(t, body.Events, 10)
}

func TestAppsEndpointListsUnimportedApps(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestAPI(t, db)

	base := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		{App: "BPS", User: "alice", Session: "s1", Timestamp: base},
		{App: "BPS", User: "bob", Session: "s2", Timestamp: base},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/apps", nil), 10000)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Apps []struct {
			AppName    string `json:"app_name"`
			SourcePath string `json:"source_path"`
			Imported   bool   `json:"imported"`
			Events     int64  `json:"events"`
		} `json:"apps"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	// Every tracked app appears, imported or not.
	require.Len(t, body.Apps, 5)

	byName := make(map[string]int64, len(body.Apps))
	for _, a := range body.Apps {
		byName[a.AppName] = a.Events
		assert.False(t, a.Imported)
		assert.NotEmpty(t, a.SourcePath)
	}
	assert.Equal(t, int64(2), byName["BPS"])
	assert.Equal(t, int64(0), byName["etam"])
}

func TestFiltersEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestAPI(t, db)

	testsupport.InsertEvents(t, db, []testsupport.EventFixture{
		{App: "btech", User: "u1", Device: "Tablet", Country: "Italy", Timestamp: time.Now().UTC()},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/filters", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var options struct {
		Apps      []string `json:"apps"`
		Devices   []string `json:"devices"`
		Countries []string `json:"countries"`
	}
	require.NoError(t, json.Unmarshal(raw, &options))
	assert.Equal(t, []string{"btech"}, options.Apps)
	assert.Equal(t, []string{"Tablet"}, options.Devices)
	assert.Equal(t, []string{"Italy"}, options.Countries)
}
