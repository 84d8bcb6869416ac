package identity

import (
	"net/mail"
	"strings"
	"time"
)

// DateResult is the outcome of parsing a message date. Valid is false when
// the input could not be parsed; Time is then the zero value and the caller
// picks the fallback.
type DateResult struct {
	Time  time.Time
	Valid bool
}

// Layouts tried after net/mail. None carries a zone, so time.Parse yields UTC.
var naiveLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05",
	"Mon, 02 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseMessageDate parses an RFC 5322 Date header, also accepting RFC 3339
// and zone-less timestamps (assumed UTC). Valid results are always in UTC.
func ParseMessageDate(s string) DateResult {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateResult{}
	}

	if t, err := mail.ParseDate(s); err == nil {
		return DateResult{Time: t.UTC(), Valid: true}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateResult{Time: t.UTC(), Valid: true}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateResult{Time: t, Valid: true}
		}
	}
	return DateResult{}
}

// OrNow returns the parsed time or now when the result is not valid.
func (d DateResult) OrNow(now time.Time) time.Time {
	if d.Valid {
		return d.Time
	}
	return now.UTC()
}
