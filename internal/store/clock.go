package store

import "time"

// NowNano returns the current time as Unix nanoseconds, the internal
// timestamp representation for every row in this package.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// FormatISO8601 renders a Unix-nanosecond timestamp as an ISO-8601 UTC
// string, the only timestamp shape allowed to cross a JSON/wire
// boundary.
func FormatISO8601(nanos int64) string {
	return time.Unix(0, nanos).UTC().Format(time.RFC3339Nano)
}

// ParseISO8601 parses an ISO-8601 UTC string into Unix nanoseconds. Accepts
// both RFC3339 and RFC3339Nano since servers may omit fractional seconds.
func ParseISO8601(s string) (int64, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixNano(), nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}

	return t.UnixNano(), nil
}
