// Package sessions derives session rows from flattened events.
//
// A session is identified by (app, session id). Rows with an empty session
// id never form sessions. The rebuild is a full recomputation and is
// idempotent: running it twice against the same events yields the same rows.
package sessions

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Session duration thresholds in seconds.
const (
	BounceThresholdSeconds     = 30
	CompletionThresholdSeconds = 60
)

// Session is one aggregated (app, session id) group.
type Session struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	AppName         string    `gorm:"uniqueIndex:idx_app_session;not null"`
	SessionID       string    `gorm:"uniqueIndex:idx_app_session;not null"`
	DistinctID      string    `gorm:"index;not null"`
	Duration        int       `gorm:"not null;default:0"`
	EventCount      int       `gorm:"not null;default:0"`
	FirstSeen       time.Time `gorm:"index"`
	LastSeen        time.Time
	PrimaryPage     string
	DeviceType      string `gorm:"index"`
	OperatingSystem string
	Country         string `gorm:"index"`
	AppVersion      string
	Bounce          bool `gorm:"not null;default:false"`
	Completed       bool `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// rebuildSQL recomputes all session rows from the events table.
//
// Duration is the MAX event duration in the group (events without a duration
// carry 0). The primary page is the most frequent non-empty page name, ties
// broken by earliest occurrence. Device, OS, country and version come from
// the session's first event.
const rebuildSQL = `
INSERT INTO sessions (
	app_name, session_id, distinct_id, duration, event_count,
	first_seen, last_seen, primary_page, device_type, operating_system,
	country, app_version, bounce, completed, created_at, updated_at
)
WITH valid_events AS (
	SELECT id, app_name, session_id, distinct_id, duration, page_name,
	       device_type, operating_system, country, app_version, timestamp
	FROM events
	WHERE session_id != ''
),
page_ranks AS (
	SELECT app_name, session_id, page_name,
	       ROW_NUMBER() OVER (
	           PARTITION BY app_name, session_id
	           ORDER BY COUNT(*) DESC, MIN(timestamp) ASC, page_name ASC
	       ) AS rn
	FROM valid_events
	WHERE page_name != ''
	GROUP BY app_name, session_id, page_name
),
first_events AS (
	SELECT app_name, session_id, distinct_id, device_type, operating_system,
	       country, app_version,
	       ROW_NUMBER() OVER (
	           PARTITION BY app_name, session_id
	           ORDER BY timestamp ASC, id ASC
	       ) AS rn
	FROM valid_events
)
SELECT
	g.app_name,
	g.session_id,
	f.distinct_id,
	g.duration,
	g.event_count,
	g.first_seen,
	g.last_seen,
	COALESCE(p.page_name, ''),
	f.device_type,
	f.operating_system,
	f.country,
	f.app_version,
	CASE WHEN g.duration < ? THEN 1 ELSE 0 END,
	CASE WHEN g.duration > ? THEN 1 ELSE 0 END,
	?,
	?
FROM (
	SELECT app_name, session_id,
	       COALESCE(MAX(duration), 0) AS duration,
	       COUNT(*) AS event_count,
	       MIN(timestamp) AS first_seen,
	       MAX(timestamp) AS last_seen
	FROM valid_events
	GROUP BY app_name, session_id
) g
JOIN first_events f
	ON f.app_name = g.app_name AND f.session_id = g.session_id AND f.rn = 1
LEFT JOIN page_ranks p
	ON p.app_name = g.app_name AND p.session_id = g.session_id AND p.rn = 1
`

// RebuildSessions drops and recomputes all session rows. Returns the number
// of sessions after the rebuild.
func RebuildSessions(dbManager cartridge.DBManager, logger *slog.Logger) (int64, error) {
	db := dbManager.GetConnection()
	now := time.Now().UTC()

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM sessions").Error; err != nil {
			return fmt.Errorf("failed to clear sessions: %w", err)
		}
		if err := tx.Exec(rebuildSQL,
			BounceThresholdSeconds, CompletionThresholdSeconds, now, now).Error; err != nil {
			return fmt.Errorf("failed to rebuild sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("Session rebuild failed", slog.Any("error", err))
		return 0, err
	}

	var count int64
	if err := db.Model(&Session{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	logger.Info("Sessions rebuilt", slog.Int64("sessions", count))
	return count, nil
}

// GetSessionCount counts all session rows.
func GetSessionCount(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&Session{}).Count(&count).Error
	return count, err
}

// GetSessionCountForApp counts session rows for a single app.
func GetSessionCountForApp(db *gorm.DB, appName string) (int64, error) {
	var count int64
	err := db.Model(&Session{}).Where("app_name = ?", appName).Count(&count).Error
	return count, err
}
