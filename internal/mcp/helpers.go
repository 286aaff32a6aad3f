package mcp

import (
	"fmt"
	"time"

	"issuemetrics/internal/metrics"
	"issuemetrics/internal/stats"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", stats.ErrInvalidConfiguration, s)
	}
	return t, nil
}

// parseKeys validates metric key names. An empty list selects every key.
func parseKeys(names []string) ([]metrics.Key, error) {
	if len(names) == 0 {
		return metrics.AllKeys(), nil
	}
	keys := make([]metrics.Key, 0, len(names))
	for _, n := range names {
		k, err := metrics.ParseKey(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", stats.ErrInvalidConfiguration, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// selectRecords returns the stored records, optionally limited to [since, until] by timestamp.
// Both bounds are whole days.
func (s *Server) selectRecords(since, until string) ([]metrics.Record, error) {
	if since == "" && until == "" {
		return s.store.Records(), nil
	}

	tr := metrics.TimeRange{End: time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)}
	if since != "" {
		start, err := parseDate(since)
		if err != nil {
			return nil, err
		}
		tr.Start = stats.SnapToStart(start, "day")
	}
	if until != "" {
		end, err := parseDate(until)
		if err != nil {
			return nil, err
		}
		tr.End = stats.SnapToEnd(end, "day")
	}
	if tr.End.Before(tr.Start) {
		return nil, fmt.Errorf("%w: since %s is after until %s", stats.ErrInvalidConfiguration, since, until)
	}
	return s.store.InRange(tr), nil
}
