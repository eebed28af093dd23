package fitblocks

import "time"

// Layouts observed in upstream responses. The schedule feed mostly
// sends RFC3339, but some deployments send naive local timestamps.
var upstreamLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseUpstreamTime parses a datetime string in any of the encodings
// the upstream is known to emit and normalizes it to UTC. Values
// without a zone are interpreted in loc. Returns false instead of an
// error on unparseable input so callers can skip the event.
func ParseUpstreamTime(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for i, layout := range upstreamLayouts {
		var (
			parsed time.Time
			err    error
		)
		if i == 0 {
			parsed, err = time.Parse(layout, value)
		} else {
			// Naive forms carry no zone information.
			parsed, err = time.ParseInLocation(layout, value, loc)
		}
		if err != nil {
			continue
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}
