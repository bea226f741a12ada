package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// exchangeTimeFormats are the layouts seen in exchange payloads
var exchangeTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.DateTime,
}

// ParseTime parses an exchange timestamp. Numeric input is treated as Unix
// microseconds, milliseconds or seconds depending on magnitude.
func ParseTime(s string) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), "\"")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case n > 1e15:
			return time.UnixMicro(n).UTC(), nil
		case n > 1e12:
			return time.UnixMilli(n).UTC(), nil
		default:
			return time.Unix(n, 0).UTC(), nil
		}
	}

	for _, format := range exchangeTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// UnixSeconds formats t as whole Unix seconds
func UnixSeconds(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
