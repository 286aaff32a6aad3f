package metrics

import (
	"encoding/json"
	"fmt"
)

// Key identifies one of the per-work-item metrics. The set is fixed.
type Key string

const (
	LeadTime     Key = "leadTime"
	CycleTime    Key = "cycleTime"
	ReviewTime   Key = "reviewTime"
	CommentCount Key = "commentCount"
	Complexity   Key = "complexity"
	PlanVsActual Key = "planVsActual"
)

var allKeys = []Key{LeadTime, CycleTime, ReviewTime, CommentCount, Complexity, PlanVsActual}

// AllKeys returns every metric key in canonical order. Engines iterate in this order.
func AllKeys() []Key {
	out := make([]Key, len(allKeys))
	copy(out, allKeys)
	return out
}

// ParseKey validates s against the fixed key set.
func ParseKey(s string) (Key, error) {
	for _, k := range allKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown metric key %q", s)
}

// Result is the outcome of extracting one metric for one work item.
// It is either a Success or a Failure, never both.
type Result interface {
	isResult()
}

// Success carries an extracted metric value.
type Success struct {
	Value   float64
	Details map[string]any
}

// Failure records why a metric could not be extracted.
type Failure struct {
	Reason  string
	Details map[string]any
}

func (Success) isResult() {}
func (Failure) isResult() {}

// Ok is shorthand for a Success without details.
func Ok(v float64) Result { return Success{Value: v} }

// Fail is shorthand for a Failure without details.
func Fail(reason string) Result { return Failure{Reason: reason} }

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// resultDTO is the wire form of a Result.
type resultDTO struct {
	Status  string         `json:"status"`
	Value   *float64       `json:"value,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func encodeResult(r Result) (resultDTO, error) {
	switch v := r.(type) {
	case Success:
		val := v.Value
		return resultDTO{Status: statusSuccess, Value: &val, Details: v.Details}, nil
	case Failure:
		return resultDTO{Status: statusFailure, Reason: v.Reason, Details: v.Details}, nil
	default:
		return resultDTO{}, fmt.Errorf("unsupported metric result %T", r)
	}
}

func decodeResult(dto resultDTO) (Result, error) {
	switch dto.Status {
	case statusSuccess:
		if dto.Value == nil {
			return nil, fmt.Errorf("success result without value")
		}
		return Success{Value: *dto.Value, Details: dto.Details}, nil
	case statusFailure:
		return Failure{Reason: dto.Reason, Details: dto.Details}, nil
	default:
		return nil, fmt.Errorf("unknown result status %q", dto.Status)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Success) MarshalJSON() ([]byte, error) {
	dto, _ := encodeResult(s)
	return json.Marshal(dto)
}

// MarshalJSON implements json.Marshaler.
func (f Failure) MarshalJSON() ([]byte, error) {
	dto, _ := encodeResult(f)
	return json.Marshal(dto)
}
