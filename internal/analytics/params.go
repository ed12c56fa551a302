package analytics

import (
	"strings"
	"time"

	"appinsights/internal/timeframe"
)

// QueryParams contains the common filters every metrics query accepts:
// an inclusive time frame plus optional app, device type and country subsets.
type QueryParams struct {
	TimeFrame *timeframe.TimeFrame
	Apps      []string
	Devices   []string
	Countries []string
	Limit     int // Number of records to return
}

// NewQueryParams creates a query params object with the specified time frame
// and app subset.
func NewQueryParams(timeFrame *timeframe.TimeFrame, apps []string) QueryParams {
	// Ensure timeFrame is not nil to prevent panics
	if timeFrame == nil {
		now := time.Now().UTC()
		timeFrame = &timeframe.TimeFrame{
			From:       now.AddDate(0, 0, -30),
			To:         now,
			BucketSize: timeframe.TimeFrameBucketSizeDay,
		}
	}

	return QueryParams{
		TimeFrame: timeFrame,
		Apps:      apps,
		Limit:     50, // Default limit
	}
}

// eventFilterSQL builds the WHERE conditions for queries over the events
// table. Returned SQL starts with the time predicate and always has at
// least one condition.
func (p QueryParams) eventFilterSQL() (string, []interface{}) {
	return p.filterSQL("timestamp")
}

// sessionFilterSQL builds the WHERE conditions for queries over the
// sessions table, anchored on the session's first event.
func (p QueryParams) sessionFilterSQL() (string, []interface{}) {
	return p.filterSQL("first_seen")
}

func (p QueryParams) filterSQL(timeColumn string) (string, []interface{}) {
	conditions := []string{timeColumn + " BETWEEN ? AND ?"}
	args := []interface{}{p.TimeFrame.From.UTC(), p.TimeFrame.To.UTC()}

	if len(p.Apps) > 0 {
		conditions = append(conditions, "app_name IN ?")
		args = append(args, p.Apps)
	}
	if len(p.Devices) > 0 {
		conditions = append(conditions, "device_type IN ?")
		args = append(args, p.Devices)
	}
	if len(p.Countries) > 0 {
		conditions = append(conditions, "country IN ?")
		args = append(args, p.Countries)
	}

	return strings.Join(conditions, " AND "), args
}
