package ranker

import (
	"math"
	"strings"
	"time"
)

var pubDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
}

// ParsePubDate разбирает дату публикации. Некорректная дата даёт ok=false.
func ParsePubDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysSince возвращает floor((now - published) / 24h).
func DaysSince(now, published time.Time) int {
	return int(math.Floor(now.Sub(published).Hours() / 24))
}
