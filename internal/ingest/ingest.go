// Package ingest loads PostHog CSV exports into the raw event table.
//
// Each tracked app has one export file. A missing or unreadable file logs a
// warning and excludes the app from the run; it never fails the import.
// Re-imports are skipped while the file fingerprint (size, mtime, content
// hash) is unchanged, unless forced.
package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"appinsights/internal/config"
	"appinsights/internal/events"
	"appinsights/internal/sessions"
)

// Export column headers. Order in the file does not matter.
const (
	columnUUID       = "uuid"
	columnEvent      = "event"
	columnProperties = "properties"
	columnDistinctID = "distinct_id"
	columnTimestamp  = "timestamp"
)

// timestampLayouts are tried in order when parsing the export timestamp.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// ImportRecord caches the source file identity of the last import per app.
type ImportRecord struct {
	ID           uint   `gorm:"primaryKey"`
	AppName      string `gorm:"uniqueIndex;not null"`
	SourcePath   string `gorm:"not null"`
	Fingerprint  string `gorm:"not null"`
	FileSize     int64
	FileModTime  time.Time
	RowCount     int
	SkippedLines int
	ImportedAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AppImportResult describes the outcome of importing one app's export.
type AppImportResult struct {
	AppName      string `json:"app_name"`
	SourcePath   string `json:"source_path"`
	Imported     int    `json:"imported"`
	SkippedLines int    `json:"skipped_lines"`
	Unchanged    bool   `json:"unchanged"`
	Missing      bool   `json:"missing"`
}

// RefreshSummary describes a full import, flatten and rebuild run.
type RefreshSummary struct {
	Apps      []AppImportResult `json:"apps"`
	Flattened int               `json:"flattened"`
	Sessions  int64             `json:"sessions"`
}

// Importer loads export files for all tracked apps.
type Importer struct {
	cfg       *config.Config
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

// NewImporter creates an Importer.
func NewImporter(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) *Importer {
	return &Importer{
		cfg:       cfg,
		dbManager: dbManager,
		logger:    logger,
	}
}

// Refresh runs the whole pipeline: import changed exports, flatten pending
// rows and rebuild the session table.
func (im *Importer) Refresh(force bool) (*RefreshSummary, error) {
	results, err := im.ImportAll(force)
	if err != nil {
		return nil, err
	}

	flattenResult, err := events.FlattenPendingEvents(im.dbManager, im.logger, im.cfg.ImportBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten events: %w", err)
	}

	sessionCount, err := sessions.RebuildSessions(im.dbManager, im.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild sessions: %w", err)
	}

	return &RefreshSummary{
		Apps:      results,
		Flattened: flattenResult.Flattened,
		Sessions:  sessionCount,
	}, nil
}

// ImportAll imports the export file of every tracked app. Per-app failures
// are logged and reported in the result, never escalated.
func (im *Importer) ImportAll(force bool) ([]AppImportResult, error) {
	apps := im.cfg.GetTrackedApps()
	results := make([]AppImportResult, 0, len(apps))

	for _, appName := range apps {
		result, err := im.importApp(appName, force)
		if err != nil {
			im.logger.Error("Import failed for app",
				slog.String("app", appName), slog.Any("error", err))
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// importApp imports a single app's export file.
func (im *Importer) importApp(appName string, force bool) (AppImportResult, error) {
	path := im.cfg.GetSourceFilePath(appName)
	result := AppImportResult{AppName: appName, SourcePath: path}

	info, err := os.Stat(path)
	if err != nil {
		im.logger.Warn("Export file not available, skipping app",
			slog.String("app", appName), slog.String("path", path), slog.Any("error", err))
		result.Missing = true
		return result, nil
	}

	fingerprint, err := fileFingerprint(path)
	if err != nil {
		im.logger.Warn("Export file unreadable, skipping app",
			slog.String("app", appName), slog.String("path", path), slog.Any("error", err))
		result.Missing = true
		return result, nil
	}

	db := im.dbManager.GetConnection()

	var record ImportRecord
	recordErr := db.Where("app_name = ?", appName).First(&record).Error
	if recordErr == nil && record.Fingerprint == fingerprint && !force {
		im.logger.Info("Export unchanged, skipping import",
			slog.String("app", appName), slog.String("fingerprint", fingerprint[:12]))
		result.Unchanged = true
		result.Imported = record.RowCount
		result.SkippedLines = record.SkippedLines
		return result, nil
	}
	if recordErr != nil && !errors.Is(recordErr, gorm.ErrRecordNotFound) {
		return result, fmt.Errorf("failed to look up import record: %w", recordErr)
	}

	rawEvents, skipped, err := im.readExport(appName, path)
	if err != nil {
		im.logger.Warn("Export file unreadable, skipping app",
			slog.String("app", appName), slog.String("path", path), slog.Any("error", err))
		result.Missing = true
		return result, nil
	}

	if err := im.replaceAppEvents(appName, rawEvents); err != nil {
		return result, err
	}

	now := time.Now().UTC()
	err = sqlite.PerformWrite(im.logger, db, func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO import_records (app_name, source_path, fingerprint, file_size, file_mod_time, row_count, skipped_lines, imported_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(app_name) DO UPDATE SET
				source_path = excluded.source_path,
				fingerprint = excluded.fingerprint,
				file_size = excluded.file_size,
				file_mod_time = excluded.file_mod_time,
				row_count = excluded.row_count,
				skipped_lines = excluded.skipped_lines,
				imported_at = excluded.imported_at,
				updated_at = excluded.updated_at
		`, appName, path, fingerprint, info.Size(), info.ModTime().UTC(),
			len(rawEvents), skipped, now, now, now).Error
	})
	if err != nil {
		return result, fmt.Errorf("failed to store import record: %w", err)
	}

	im.logger.Info("Imported export",
		slog.String("app", appName),
		slog.Int("rows", len(rawEvents)),
		slog.Int("skipped_lines", skipped))

	result.Imported = len(rawEvents)
	result.SkippedLines = skipped
	return result, nil
}

// readExport parses an export file into RawEvents. Malformed lines are
// counted and skipped.
func (im *Importer) readExport(appName, path string) ([]events.RawEvent, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read export header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{columnEvent, columnDistinctID, columnTimestamp} {
		if _, ok := columns[required]; !ok {
			return nil, 0, fmt.Errorf("export missing required column %q", required)
		}
	}

	var rawEvents []events.RawEvent
	skipped := 0
	now := time.Now().UTC()

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		timestamp, err := parseTimestamp(fieldAt(fields, columns, columnTimestamp))
		if err != nil {
			skipped++
			continue
		}

		rawEvents = append(rawEvents, events.RawEvent{
			AppName:    appName,
			UUID:       fieldAt(fields, columns, columnUUID),
			EventName:  fieldAt(fields, columns, columnEvent),
			Properties: fieldAt(fields, columns, columnProperties),
			DistinctID: fieldAt(fields, columns, columnDistinctID),
			Timestamp:  timestamp,
			CreatedAt:  now,
			Flattened:  0,
		})
	}

	return rawEvents, skipped, nil
}

// replaceAppEvents swaps out one app's raw and flattened rows for a fresh
// import. Batched so a large export does not hold one long transaction.
func (im *Importer) replaceAppEvents(appName string, rawEvents []events.RawEvent) error {
	db := im.dbManager.GetConnection()

	err := sqlite.PerformWrite(im.logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("app_name = ?", appName).Delete(&events.RawEvent{}).Error; err != nil {
			return fmt.Errorf("failed to clear raw events: %w", err)
		}
		if err := tx.Where("app_name = ?", appName).Delete(&events.Event{}).Error; err != nil {
			return fmt.Errorf("failed to clear flattened events: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	batchSize := im.cfg.ImportBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	for i := 0; i < len(rawEvents); i += batchSize {
		end := i + batchSize
		if end > len(rawEvents) {
			end = len(rawEvents)
		}
		batch := rawEvents[i:end]

		err := sqlite.PerformWrite(im.logger, db, func(tx *gorm.DB) error {
			return tx.Create(&batch).Error
		})
		if err != nil {
			return fmt.Errorf("failed to store raw events: %w", err)
		}
	}

	return nil
}

// InvalidateFingerprints drops all import records so the next import rereads
// every export file.
func InvalidateFingerprints(dbManager cartridge.DBManager, logger *slog.Logger) error {
	db := dbManager.GetConnection()
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Exec("DELETE FROM import_records").Error
	})
}

// GetImportRecords returns all import records keyed by app name.
func GetImportRecords(db *gorm.DB) (map[string]ImportRecord, error) {
	var records []ImportRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, err
	}
	byApp := make(map[string]ImportRecord, len(records))
	for _, r := range records {
		byApp[r.AppName] = r
	}
	return byApp, nil
}

func fieldAt(fields []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp: %s", value)
}

// fileFingerprint hashes the export content. Size and mtime are stored for
// display but the hash alone decides whether a re-import is needed.
func fileFingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
