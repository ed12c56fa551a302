package events

import (
	"time"

	"gorm.io/gorm"
)

// EventFilters represents filtering options for events
type EventFilters struct {
	Apps       []string
	FromDate   time.Time
	ToDate     time.Time
	Devices    []string
	Countries  []string
	PageFilter string
	UserFilter string
	Limit      int
	Offset     int
}

// EventsResult represents paginated events result
type EventsResult struct {
	Events []Event
	Total  int64
}

// GetFilteredEvents retrieves filtered and paginated events
func GetFilteredEvents(db *gorm.DB, filters EventFilters) (EventsResult, error) {
	query := db.Model(&Event{}).
		Where("timestamp BETWEEN ? AND ?", filters.FromDate, filters.ToDate)

	if len(filters.Apps) > 0 {
		query = query.Where("app_name IN ?", filters.Apps)
	}

	if len(filters.Devices) > 0 {
		query = query.Where("device_type IN ?", filters.Devices)
	}

	if len(filters.Countries) > 0 {
		query = query.Where("country IN ?", filters.Countries)
	}

	if filters.PageFilter != "" {
		query = query.Where("page_name LIKE ?", "%"+filters.PageFilter+"%")
	}

	if filters.UserFilter != "" {
		query = query.Where("distinct_id LIKE ?", "%"+filters.UserFilter+"%")
	}

	// Get total count for pagination
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return EventsResult{}, err
	}

	// Get paginated events
	var events []Event
	if err := query.Order("timestamp DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&events).Error; err != nil {
		return EventsResult{}, err
	}

	return EventsResult{
		Events: events,
		Total:  total,
	}, nil
}

// GetEventCountForApp counts flattened events for a single app.
func GetEventCountForApp(db *gorm.DB, appName string) (int64, error) {
	var count int64
	err := db.Model(&Event{}).Where("app_name = ?", appName).Count(&count).Error
	return count, err
}

// GetRawEventCountForApp counts imported raw rows for a single app.
func GetRawEventCountForApp(db *gorm.DB, appName string) (int64, error) {
	var count int64
	err := db.Model(&RawEvent{}).Where("app_name = ?", appName).Count(&count).Error
	return count, err
}
