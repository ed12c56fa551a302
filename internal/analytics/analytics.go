// Package analytics computes the dashboard metrics from the flattened event
// and session tables.
//
// All queries are read-only and filter-driven: callers pass QueryParams and
// get back plain result structs. Grouped results only contain keys present
// in the filtered set, and every rate degrades to 0 on an empty denominator.
package analytics

// MetricCountResult is a generic name/count pair for top-N breakdowns.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Totals holds the headline KPIs for the current filters.
type Totals struct {
	UniqueUsers    int64   `json:"unique_users"`
	UniqueSessions int64   `json:"unique_sessions"`
	TotalEvents    int64   `json:"total_events"`
	AvgDuration    float64 `json:"avg_duration"`
	BounceRate     float64 `json:"bounce_rate"`
	CompletionRate float64 `json:"completion_rate"`
}

// AppSummary is the per-app comparison row.
type AppSummary struct {
	AppName        string  `json:"app_name"`
	Users          int64   `json:"users"`
	Sessions       int64   `json:"sessions"`
	Events         int64   `json:"events"`
	AvgDuration    float64 `json:"avg_duration"`
	BounceRate     float64 `json:"bounce_rate"`
	CompletionRate float64 `json:"completion_rate"`
}

// VersionSummary aggregates usage per released app version.
type VersionSummary struct {
	AppName     string  `json:"app_name"`
	AppVersion  string  `json:"app_version"`
	Users       int64   `json:"users"`
	Events      int64   `json:"events"`
	AvgDuration float64 `json:"avg_duration"`
}

// ConnectionSummary breaks events down by network type per app.
type ConnectionSummary struct {
	AppName  string `json:"app_name"`
	Wifi     int64  `json:"wifi"`
	Cellular int64  `json:"cellular"`
	Unknown  int64  `json:"unknown"`
}

// UserFlowLink is one edge of the navigation flow diagram: how many events
// moved from one route to the next.
type UserFlowLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  int64  `json:"value"`
}

// GeoSummary aggregates usage per (country, city). Coordinates are averaged
// over the events that carried them and stay nil when none did.
type GeoSummary struct {
	Country     string   `json:"country"`
	City        string   `json:"city"`
	Users       int64    `json:"users"`
	Events      int64    `json:"events"`
	AvgDuration float64  `json:"avg_duration"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// HeatmapCell is one hour-of-day x day-of-week bucket. Weekday follows
// SQLite's %w convention: 0 is Sunday.
type HeatmapCell struct {
	Weekday int   `json:"weekday"`
	Hour    int   `json:"hour"`
	Count   int64 `json:"count"`
}

// DurationBucket is one bar of the session duration histogram.
type DurationBucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}
