package seeder_test

import (
	"context"
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appinsights/internal/properties"
	"appinsights/internal/seeder"
	"appinsights/internal/testsupport"
)

func TestSeededDocumentsResolveThroughSchema(t *testing.T) {
	dir := t.TempDir()
	cfg := testsupport.ImportConfig(t, dir)

	s := seeder.NewSeeder(cfg, testsupport.GetLogger(), 0)
	require.NoError(t, s.SeedApp(context.Background(), "BPS", 40))

	file, err := os.Open(cfg.GetSourceFilePath("BPS"))
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(rows), 40)
	assert.Equal(t, []string{"uuid", "event", "properties", "distinct_id", "timestamp"}, rows[0])

	versions := 0
	widgets := 0
	routes := 0
	for _, row := range rows[1:] {
		values, strategy := properties.Parse(row[2])
		require.Equal(t, properties.StrategyJSON, strategy)

		assert.NotEmpty(t, values.String("session_id"))
		assert.NotEmpty(t, values.String("page_name"))
		assert.NotEmpty(t, values.String("country"))
		require.NotNil(t, values.Float("latitude"))

		if values.String("app_version") != "" {
			versions++
		}
		if values.String("widget_name") != "" {
			widgets++
		}
		if values.String("route") != "" && values.String("prev_route") != "" {
			routes++
		}
	}

	// Every row carries a version; widgets and route transitions are only on
	// a subset but must resolve for the charts that read them.
	assert.Equal(t, len(rows)-1, versions)
	assert.Greater(t, widgets, 0)
	assert.Greater(t, routes, 0)
}
