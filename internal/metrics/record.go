package metrics

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the per-work-item metric set produced by metrics extraction.
// Engines treat it as read-only.
type Record struct {
	IssueNumber int
	Title       string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Metrics     map[Key]Result
}

// Timestamp is the time the record is associated with for window filtering:
// the completion time if known, otherwise the creation time.
func (r Record) Timestamp() time.Time {
	if r.CompletedAt != nil {
		return *r.CompletedAt
	}
	return r.CreatedAt
}

// Value returns the metric value if extraction succeeded.
func (r Record) Value(k Key) (float64, bool) {
	if s, ok := r.Metrics[k].(Success); ok {
		return s.Value, true
	}
	return 0, false
}

// Complete reports whether every metric key succeeded for this record.
func (r Record) Complete() bool {
	for _, k := range allKeys {
		if _, ok := r.Value(k); !ok {
			return false
		}
	}
	return true
}

type recordDTO struct {
	IssueNumber int               `json:"issueNumber"`
	Title       string            `json:"title"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Metrics     map[Key]resultDTO `json:"metrics"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	dto := recordDTO{
		IssueNumber: r.IssueNumber,
		Title:       r.Title,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		Metrics:     make(map[Key]resultDTO, len(r.Metrics)),
	}
	for k, res := range r.Metrics {
		enc, err := encodeResult(res)
		if err != nil {
			return nil, fmt.Errorf("issue #%d metric %s: %w", r.IssueNumber, k, err)
		}
		dto.Metrics[k] = enc
	}
	return json.Marshal(dto)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	out := Record{
		IssueNumber: dto.IssueNumber,
		Title:       dto.Title,
		CreatedAt:   dto.CreatedAt,
		CompletedAt: dto.CompletedAt,
		Metrics:     make(map[Key]Result, len(dto.Metrics)),
	}
	for k, enc := range dto.Metrics {
		if _, err := ParseKey(string(k)); err != nil {
			return fmt.Errorf("issue #%d: %w", dto.IssueNumber, err)
		}
		res, err := decodeResult(enc)
		if err != nil {
			return fmt.Errorf("issue #%d metric %s: %w", dto.IssueNumber, k, err)
		}
		out.Metrics[k] = res
	}
	*r = out
	return nil
}

// TimeRange is a closed interval of time. It serializes as RFC 3339 strings.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within [Start, End].
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// RangeFilter selects the records whose timestamp falls within a range.
type RangeFilter func(records []Record, r TimeRange) []Record

// FilterByTimestamp is the default RangeFilter, keyed on Record.Timestamp.
// Input order is preserved.
func FilterByTimestamp(records []Record, r TimeRange) []Record {
	var out []Record
	for _, rec := range records {
		ts := rec.Timestamp()
		if ts.IsZero() {
			continue
		}
		if r.Contains(ts) {
			out = append(out, rec)
		}
	}
	return out
}
