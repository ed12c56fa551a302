package testsupport

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"appinsights/internal"
	"appinsights/internal/config"
	"appinsights/internal/events"
	"appinsights/internal/ingest"
	"appinsights/internal/sessions"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with appinsights' interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all appinsights models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&events.RawEvent{},
		&events.Event{},
		&sessions.Session{},
		&ingest.ImportRecord{},
	}
}

// SetupTestDB creates a test database with all appinsights models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	// Check cache first
	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Apply SQLite pragmas
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	// Auto-migrate models
	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	// Cache the database
	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	// Register cleanup
	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set APPINSIGHTS_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanTables cleans specific tables or all tables if none specified
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		CleanAllTables(db)
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// EventFixture describes one flattened event row for tests. Zero values
// mirror the flattener's defaults for absent properties.
type EventFixture struct {
	App       string
	User      string
	Session   string
	EventName string
	Duration  int
	Page      string
	Widget    string
	Screen    string
	Route     string
	PrevRoute string
	Device    string
	OS        string
	Country   string
	City      string
	Latitude  *float64
	Longitude *float64
	Version   string
	Wifi      *bool
	Timestamp time.Time
}

// InsertEvent stores one flattened event row.
func InsertEvent(t *testing.T, db *gorm.DB, f EventFixture) {
	t.Helper()

	eventName := f.EventName
	if eventName == "" {
		eventName = "capture"
	}
	timestamp := f.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	event := &events.Event{
		AppName:         f.App,
		EventName:       eventName,
		EventType:       events.ParseEventType(eventName),
		DistinctID:      f.User,
		SessionID:       f.Session,
		Duration:        f.Duration,
		PageName:        f.Page,
		WidgetName:      f.Widget,
		ScreenName:      f.Screen,
		Route:           f.Route,
		PrevRoute:       f.PrevRoute,
		DeviceType:      f.Device,
		OperatingSystem: f.OS,
		Country:         f.Country,
		City:            f.City,
		Latitude:        f.Latitude,
		Longitude:       f.Longitude,
		AppVersion:      f.Version,
		NetworkWifi:     f.Wifi,
		Timestamp:       timestamp,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, db.Create(event).Error)
}

// InsertEvents stores a batch of flattened event rows.
func InsertEvents(t *testing.T, db *gorm.DB, fixtures []EventFixture) {
	t.Helper()
	for _, f := range fixtures {
		InsertEvent(t, db, f)
	}
}

// InsertRawEvent stores one unflattened export row.
func InsertRawEvent(t *testing.T, db *gorm.DB, appName, eventName, properties, distinctID string, timestamp time.Time) {
	t.Helper()

	raw := &events.RawEvent{
		AppName:    appName,
		UUID:       fmt.Sprintf("uuid-%d", time.Now().UnixNano()),
		EventName:  eventName,
		Properties: properties,
		DistinctID: distinctID,
		Timestamp:  timestamp,
		CreatedAt:  time.Now().UTC(),
		Flattened:  0,
	}
	require.NoError(t, db.Create(raw).Error)
}

// WriteExportFile writes a PostHog-style CSV export into dir and returns its
// path. Rows are (uuid, event, properties, distinct_id, timestamp).
func WriteExportFile(t *testing.T, dir, appName string, rows [][]string) string {
	t.Helper()

	path := filepath.Join(dir, fmt.Sprintf("data_app_posthog_%s.csv", appName))
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	writer := csv.NewWriter(file)
	require.NoError(t, writer.Write([]string{"uuid", "event", "properties", "distinct_id", "timestamp"}))
	for _, row := range rows {
		require.NoError(t, writer.Write(row))
	}
	writer.Flush()
	require.NoError(t, writer.Error())

	return path
}

// ImportConfig returns a config pointed at dir for loader tests.
func ImportConfig(t *testing.T, dir string) *config.Config {
	t.Helper()

	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set APPINSIGHTS_ENV=test", cfg.Environment)
	}

	copied := *cfg
	copied.DataDirectory = dir
	if copied.ImportBatchSize <= 0 {
		copied.ImportBatchSize = 100
	}
	return &copied
}

// CreateTestAPI creates a test Fiber app with all routes mounted.
func CreateTestAPI(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
