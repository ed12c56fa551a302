package properties

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrictJSON(t *testing.T) {
	doc := `{
		"$session_id": "s-123",
		"Duration": 42,
		"Page_Name": "Home",
		"Widget_Name": "BookingWidget",
		"$device_type": "Mobile",
		"$os": "iOS",
		"$geoip_country_name": "Norway",
		"$network_wifi": true,
		"$app_version": "2.4.1",
		"$geoip_latitude": 59.91
	}`

	values, strategy := Parse(doc)

	assert.Equal(t, StrategyJSON, strategy)
	assert.Equal(t, "s-123", values.String("session_id"))
	assert.Equal(t, 42, values.Int("duration"))
	assert.Equal(t, "Home", values.String("page_name"))
	assert.Equal(t, "BookingWidget", values.String("widget_name"))
	assert.Equal(t, "Mobile", values.String("device_type"))
	assert.Equal(t, "iOS", values.String("os"))
	assert.Equal(t, "Norway", values.String("country"))
	require.NotNil(t, values.Bool("network_wifi"))
	assert.True(t, *values.Bool("network_wifi"))
	assert.Equal(t, "2.4.1", values.String("app_version"))
	require.NotNil(t, values.Float("latitude"))
	assert.InDelta(t, 59.91, *values.Float("latitude"), 0.001)
}

func TestParseMissingKeysYieldDefaults(t *testing.T) {
	values, strategy := Parse(`{"Page_Name": "Search"}`)

	assert.Equal(t, StrategyJSON, strategy)
	assert.Equal(t, "Search", values.String("page_name"))
	assert.Equal(t, "", values.String("session_id"))
	assert.Equal(t, 0, values.Int("duration"))
	assert.Nil(t, values.Float("latitude"))
	assert.Nil(t, values.Bool("network_wifi"))
	assert.False(t, values.Has("duration"))
}

func TestParseNestedSetFallback(t *testing.T) {
	doc := `{"$session_id": "s-9", "$set": {"$geoip_country_name": "Sweden", "$geoip_city_name": "Stockholm", "$geoip_latitude": 59.33}}`

	values, strategy := Parse(doc)

	assert.Equal(t, StrategyJSON, strategy)
	assert.Equal(t, "Sweden", values.String("country"))
	assert.Equal(t, "Stockholm", values.String("city"))
	require.NotNil(t, values.Float("latitude"))
	assert.InDelta(t, 59.33, *values.Float("latitude"), 0.001)
}

func TestParseTopLevelWinsOverNestedSet(t *testing.T) {
	doc := `{"$geoip_country_name": "Norway", "$set": {"$geoip_country_name": "Sweden"}}`

	values, _ := Parse(doc)

	assert.Equal(t, "Norway", values.String("country"))
}

func TestParseRepairedEscapedQuotes(t *testing.T) {
	doc := `{\"$session_id\": \"s-55\", \"Duration\": 18, \"Page_Name\": \"Booking\"}`

	values, strategy := Parse(doc)

	assert.Equal(t, StrategyRepairedJSON, strategy)
	assert.Equal(t, "s-55", values.String("session_id"))
	assert.Equal(t, 18, values.Int("duration"))
	assert.Equal(t, "Booking", values.String("page_name"))
}

func TestParseRepairedDoubledQuotes(t *testing.T) {
	doc := `{""$session_id"": ""s-77"", ""Widget_Name"": ""CheckIn""}`

	values, strategy := Parse(doc)

	assert.Equal(t, StrategyRepairedJSON, strategy)
	assert.Equal(t, "s-77", values.String("session_id"))
	assert.Equal(t, "CheckIn", values.String("widget_name"))
}

func TestParsePatternFallbackOnTruncatedDocument(t *testing.T) {
	// Truncated tail makes this invalid JSON even after quote repair.
	doc := `{"$session_id": "s-88", "Duration": 33.0, "Page_Name": "Home", "$os": "Android", "$network_wifi": false, "$geoip_cou`

	values, strategy := Parse(doc)

	assert.Equal(t, StrategyPattern, strategy)
	assert.Equal(t, "s-88", values.String("session_id"))
	assert.Equal(t, 33, values.Int("duration"))
	assert.Equal(t, "Home", values.String("page_name"))
	assert.Equal(t, "Android", values.String("os"))
	require.NotNil(t, values.Bool("network_wifi"))
	assert.False(t, *values.Bool("network_wifi"))
	// The truncated key never resolves.
	assert.Equal(t, "", values.String("country"))
}

func TestParseUnparseableDocument(t *testing.T) {
	for _, doc := range []string{"", "   ", "not a document", "12345", `["a","b"]`} {
		values, strategy := Parse(doc)

		assert.Equal(t, StrategyNone, strategy, "doc: %q", doc)
		assert.Equal(t, "", values.String("session_id"))
		assert.Equal(t, 0, values.Int("duration"))
		assert.Nil(t, values.Bool("network_wifi"))
	}
}

func TestParseStringDuration(t *testing.T) {
	values, _ := Parse(`{"Duration": "27.0"}`)

	assert.Equal(t, 27, values.Int("duration"))
	assert.True(t, values.Has("duration"))
}

func TestParseCoercionFailureTreatedAsAbsent(t *testing.T) {
	values, _ := Parse(`{"Duration": "not-a-number", "$network_wifi": "maybe"}`)

	assert.Equal(t, 0, values.Int("duration"))
	assert.False(t, values.Has("duration"))
	assert.Nil(t, values.Bool("network_wifi"))
}

func TestSchemaFieldsLoaded(t *testing.T) {
	fields := Fields()

	require.NotEmpty(t, fields)
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	assert.Equal(t, "$session_id", byName["session_id"].Key)
	assert.Equal(t, TypeInt, byName["duration"].Type)
	assert.True(t, byName["country"].NestedSet)
	for _, f := range fields {
		assert.NotEmpty(t, f.Pattern, "field %s needs a fallback pattern", f.Name)
	}
}
