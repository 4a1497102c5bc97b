package utils

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDateFormat is the day-first layout used in API query parameters and exports.
const DefaultDateFormat = "02/01/2006"

// dayFirstLayouts are tried in order. Day-first forms come before ISO so that
// "03/04/2024" is always the 3rd of April.
var dayFirstLayouts = []string{
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"02-01-2006",
	"02-01-2006 15:04:05",
	"02.01.2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
}

// ParseDayFirstDate parses the date formats seen in uploads and API payloads.
func ParseDayFirstDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date '%s'", s)
}

// FormatDateRange renders the "dd/mm/yyyy - dd/mm/yyyy" filter the REST sources expect.
func FormatDateRange(from, to time.Time) string {
	return from.Format(DefaultDateFormat) + " - " + to.Format(DefaultDateFormat)
}

// EndOfDay returns the last instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
