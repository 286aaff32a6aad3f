package stats

import (
	"fmt"
	"time"

	"issuemetrics/internal/metrics"
)

// SnapToStart normalizes a timestamp to the beginning of its bucket (0:00:00).
func SnapToStart(t time.Time, bucket string) time.Time {
	if t.IsZero() {
		return t
	}
	switch bucket {
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "week":
		// Snap to Monday
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(t.Year(), t.Month(), t.Day()-(weekday-1), 0, 0, 0, 0, t.Location())
	default: // day
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

// SnapToEnd normalizes a timestamp to the very end of its bucket (23:59:59.999...).
func SnapToEnd(t time.Time, bucket string) time.Time {
	if t.IsZero() {
		return t
	}
	switch bucket {
	case "month":
		nextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		return nextMonth.Add(-time.Nanosecond)
	case "week":
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(t.Year(), t.Month(), t.Day()+(7-weekday), 23, 59, 59, 999999999, t.Location())
	default: // day
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, t.Location())
	}
}

// ComparisonWindows are the two disjoint, day-aligned ranges compared by the anomaly detector.
type ComparisonWindows struct {
	Recent   metrics.TimeRange `json:"recent"`
	Baseline metrics.TimeRange `json:"baseline"`
}

// BuildComparisonWindows derives the recent and baseline windows from a reference date.
//
// The recent window ends at the end of the reference day and spans recentDays calendar
// days. The baseline window ends gapDays full days before the recent window starts and
// spans baselineDays calendar days. Day arithmetic uses calendar days in ref's location.
func BuildComparisonWindows(ref time.Time, recentDays, baselineDays, gapDays int) ComparisonWindows {
	recentEnd := SnapToEnd(ref, "day")
	recentStart := SnapToStart(recentEnd.AddDate(0, 0, -(recentDays-1)), "day")

	baselineEnd := SnapToEnd(recentStart.AddDate(0, 0, -(gapDays+1)), "day")
	baselineStart := SnapToStart(baselineEnd.AddDate(0, 0, -(baselineDays-1)), "day")

	return ComparisonWindows{
		Recent:   metrics.TimeRange{Start: recentStart, End: recentEnd},
		Baseline: metrics.TimeRange{Start: baselineStart, End: baselineEnd},
	}
}

// BucketStats summarizes one metric inside a single time bucket.
type BucketStats struct {
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	Count  int       `json:"count"`
	Mean   *float64  `json:"mean"`
	Median *float64  `json:"median"`
	Values []float64 `json:"values"`
}

// GroupByBucket splits the successful values of key within tr into day, week or month
// buckets, in chronological order. Empty buckets are kept so gaps stay visible.
func GroupByBucket(records []metrics.Record, key metrics.Key, tr metrics.TimeRange, bucket string) []BucketStats {
	if bucket == "" {
		bucket = "day"
	}
	start := SnapToStart(tr.Start, bucket)
	end := SnapToEnd(tr.End, bucket)

	var buckets []BucketStats
	index := make(map[int64]int)
	for current := start; current.Before(end); current = nextBucket(current, bucket) {
		index[current.Unix()] = len(buckets)
		buckets = append(buckets, BucketStats{Label: bucketLabel(current, bucket), Start: current})
	}

	for _, r := range metrics.FilterByTimestamp(records, metrics.TimeRange{Start: start, End: end}) {
		v, ok := r.Value(key)
		if !ok {
			continue
		}
		i, ok := index[SnapToStart(r.Timestamp().In(start.Location()), bucket).Unix()]
		if !ok {
			continue
		}
		buckets[i].Values = append(buckets[i].Values, v)
	}

	for i := range buckets {
		b := &buckets[i]
		b.Count = len(b.Values)
		if b.Count > 0 {
			b.Mean = ptr(CalculateMean(b.Values))
			b.Median = ptr(CalculateMedianContinuous(b.Values))
		}
	}
	return buckets
}

func nextBucket(t time.Time, bucket string) time.Time {
	switch bucket {
	case "month":
		return t.AddDate(0, 1, 0)
	case "week":
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// bucketLabel returns a human-readable label (e.g. "Jan 2024", "2024-W01", "2024-01-02").
func bucketLabel(t time.Time, bucket string) string {
	switch bucket {
	case "month":
		return t.Format("Jan 2006")
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return t.Format("2006-01-02")
	}
}
