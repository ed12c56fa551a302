package events

import (
	"strings"
	"time"
)

// EventType classifies export event names into a small fixed set.
type EventType int

const (
	EventTypeOther       EventType = 0
	EventTypeCapture     EventType = 1
	EventTypeAutocapture EventType = 2
	EventTypePageLeave   EventType = 3
)

// ParseEventType maps a raw export event name onto an EventType.
func ParseEventType(name string) EventType {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "$")) {
	case "capture":
		return EventTypeCapture
	case "autocapture":
		return EventTypeAutocapture
	case "pageleave":
		return EventTypePageLeave
	default:
		return EventTypeOther
	}
}

// RawEvent is one line of a PostHog CSV export, stored before flattening.
// The property document is kept verbatim so flattening can be re-run.
type RawEvent struct {
	ID         uint      `gorm:"primaryKey"`
	AppName    string    `gorm:"index:idx_raw_app_flattened;not null"`
	UUID       string    `gorm:"index"`
	EventName  string    `gorm:"index"`
	Properties string    `gorm:"type:text"`
	DistinctID string    `gorm:"index"`
	Timestamp  time.Time `gorm:"index"`
	CreatedAt  time.Time `gorm:"index"`
	Flattened  int       `gorm:"index:idx_raw_app_flattened"`
}

// Event is a flattened export row with the property document promoted to
// typed columns. Absent properties keep their declared defaults.
type Event struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	AppName         string `gorm:"index:idx_app_timestamp;not null"`
	UUID            string `gorm:"index"`
	EventName       string
	EventType       EventType `gorm:"index"`
	DistinctID      string    `gorm:"index;not null"`
	SessionID       string    `gorm:"index"`
	Duration        int       `gorm:"not null;default:0"`
	PageName        string    `gorm:"index"`
	WidgetName      string
	ScreenName      string
	TabName         string
	Route           string
	PrevRoute       string
	CheckIn         string
	CheckOut        string
	Connection      string
	DeviceType      string `gorm:"index"`
	OperatingSystem string `gorm:"index"`
	Country         string `gorm:"index"`
	City            string
	Latitude        *float64
	Longitude       *float64
	NetworkWifi     *bool
	AppVersion      string `gorm:"index"`
	AppBuild        string
	Timestamp       time.Time `gorm:"index:idx_app_timestamp;not null"`
	CreatedAt       time.Time
}
