// Package seeder generates demo export files so the dashboard can be tried
// without real PostHog data. The generated CSVs land in the configured data
// directory and go through the normal import pipeline.
package seeder

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"appinsights/internal/config"
)

// Seeder writes synthetic PostHog-style CSV exports.
type Seeder struct {
	Config     *config.Config
	Logger     *slog.Logger
	EventCount int
}

// NewSeeder creates a new seeder instance.
func NewSeeder(cfg *config.Config, logger *slog.Logger, eventCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		Config:     cfg,
		Logger:     logger,
		EventCount: eventCount,
	}
}

var deviceTypes = []string{"Mobile", "Tablet", "Desktop"}

var operatingSystems = []string{"Android", "iOS", "Windows", "Mac OS X"}

var countryCities = map[string][]string{
	"Spain":          {"Madrid", "Barcelona", "Valencia"},
	"France":         {"Paris", "Lyon", "Nice"},
	"Germany":        {"Berlin", "Munich", "Hamburg"},
	"United Kingdom": {"London", "Manchester"},
	"Italy":          {"Rome", "Milan"},
}

// Rough country centroids for the geo performance view.
var countryGeo = map[string][2]float64{
	"Spain":          {40.42, -3.70},
	"France":         {48.86, 2.35},
	"Germany":        {52.52, 13.40},
	"United Kingdom": {51.51, -0.13},
	"Italy":          {41.90, 12.50},
}

var appVersions = []string{"2.0.1", "2.1.0", "2.1.3", "2.2.0"}

// Screen journeys per session. Pages double as screen names for simplicity.
var journeyTemplates = [][]string{
	{"Home"},
	{"Home", "Search", "Results"},
	{"Home", "Profile", "Settings"},
	{"Home", "Catalog", "Product", "Checkout"},
	{"Login", "Home", "Notifications"},
	{"Home", "Booking", "Booking Confirm"},
}

var widgetNames = []string{"SearchBar", "DatePicker", "MapView", "FilterPanel", "ShareButton"}

// Run generates one export file per tracked app.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	apps := s.Config.GetTrackedApps()

	perApp := s.EventCount / len(apps)
	if perApp < 1 {
		perApp = 1
	}

	for _, appName := range apps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.SeedApp(ctx, appName, perApp); err != nil {
			return fmt.Errorf("failed to seed app %s: %w", appName, err)
		}
	}

	s.Logger.Info("Seeding completed",
		slog.Int("apps", len(apps)),
		slog.Int("events_per_app", perApp),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// SeedApp writes one app's export file with roughly eventCount rows.
func (s *Seeder) SeedApp(ctx context.Context, appName string, eventCount int) error {
	path := s.Config.GetSourceFilePath(appName)

	if err := os.MkdirAll(s.Config.DataDirectory, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"uuid", "event", "properties", "distinct_id", "timestamp"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	now := time.Now().UTC()
	written := 0

	for written < eventCount {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rows := s.writeSession(writer, appName, now, written)
		written += rows
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}

	s.Logger.Info("Wrote demo export",
		slog.String("app", appName),
		slog.String("path", path),
		slog.Int("rows", written))
	return nil
}

// writeSession emits one user session worth of events and returns the row
// count.
func (s *Seeder) writeSession(writer *csv.Writer, appName string, now time.Time, seq int) int {
	journey := journeyTemplates[rand.IntN(len(journeyTemplates))]
	sessionID := fmt.Sprintf("seed-%s-%d", appName, seq)
	distinctID := fmt.Sprintf("user-%d", rand.IntN(200))

	country := randomCountry()
	city := countryCities[country][rand.IntN(len(countryCities[country]))]
	device := deviceTypes[rand.IntN(len(deviceTypes))]
	osName := operatingSystems[rand.IntN(len(operatingSystems))]
	version := appVersions[rand.IntN(len(appVersions))]
	wifi := rand.IntN(2) == 0

	// Sessions start at a random point in the last 30 days.
	sessionStart := now.Add(-time.Duration(rand.IntN(30*24)) * time.Hour)
	stepGap := time.Duration(5+rand.IntN(60)) * time.Second
	totalDuration := 0

	geo := countryGeo[country]

	for step, page := range journey {
		totalDuration += int(stepGap.Seconds())

		props := map[string]interface{}{
			"$session_id":   sessionID,
			"Duration":      totalDuration,
			"Page_Name":     page,
			"$screen_name":  page,
			"Route":         page,
			"$device_type":  device,
			"$os":           osName,
			"$app_version":  version,
			"$network_wifi": wifi,
			"$set": map[string]interface{}{
				"$geoip_country_name": country,
				"$geoip_city_name":    city,
				"$geoip_latitude":     geo[0],
				"$geoip_longitude":    geo[1],
			},
		}
		if step > 0 {
			props["Prev_Route"] = journey[step-1]
		}
		if rand.IntN(3) == 0 {
			props["Widget_Name"] = widgetNames[rand.IntN(len(widgetNames))]
		}

		doc, err := json.Marshal(props)
		if err != nil {
			continue
		}

		timestamp := sessionStart.Add(time.Duration(step) * stepGap)
		writer.Write([]string{
			fmt.Sprintf("%s-%d-%d", sessionID, step, rand.IntN(1_000_000)),
			"capture",
			string(doc),
			distinctID,
			timestamp.Format("2006-01-02 15:04:05.000000+00:00"),
		})
	}

	return len(journey)
}

func randomCountry() string {
	i := rand.IntN(len(countryCities))
	for country := range countryCities {
		if i == 0 {
			return country
		}
		i--
	}
	return "Spain"
}
