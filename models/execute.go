package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireTimeFormat is the timestamp layout the execution engine expects.
const WireTimeFormat = "2006-01-02 15:04:05"

// FormatWireTime renders t in UTC using WireTimeFormat.
func FormatWireTime(t time.Time) string {
	return t.UTC().Format(WireTimeFormat)
}

// ParseWireTime parses a WireTimeFormat timestamp as UTC.
func ParseWireTime(s string) (time.Time, error) {
	return time.ParseInLocation(WireTimeFormat, s, time.UTC)
}

// ExecuteRequest is the envelope sent to the execution engine.
type ExecuteRequest struct {
	Spec      QuerySpec `json:"spec"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
}

// NewExecuteRequest wraps a spec and its time range. The range must be
// non-empty.
func NewExecuteRequest(spec QuerySpec, start, end time.Time) (*ExecuteRequest, error) {
	if spec == nil {
		return nil, fmt.Errorf("missing query spec")
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end time %s must be after start time %s",
			FormatWireTime(end), FormatWireTime(start))
	}

	return &ExecuteRequest{
		Spec:      spec,
		StartTime: FormatWireTime(start),
		EndTime:   FormatWireTime(end),
	}, nil
}

// TimeseriesPoint is one bucket of a timeseries result.
type TimeseriesPoint struct {
	Bucket string             `json:"bucket"`
	Series map[string]float64 `json:"series"`
}

// BreakdownRow is one group of a breakdown result.
type BreakdownRow struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ExecuteResult is the discriminated result returned by the execution
// engine. Exactly one of Timeseries or Breakdown is populated, matching Kind.
type ExecuteResult struct {
	Kind       SpecMode
	Timeseries []TimeseriesPoint
	Breakdown  []BreakdownRow
}

type executeResultWire struct {
	Kind SpecMode        `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the result as {kind, data}.
func (r ExecuteResult) MarshalJSON() ([]byte, error) {
	var data any
	switch r.Kind {
	case ModeTimeseries:
		data = r.Timeseries
	case ModeBreakdown:
		data = r.Breakdown
	default:
		return nil, fmt.Errorf("unknown result kind %q", r.Kind)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(executeResultWire{Kind: r.Kind, Data: raw})
}

// UnmarshalJSON decodes {kind, data} into the matching field.
func (r *ExecuteResult) UnmarshalJSON(b []byte) error {
	var wire executeResultWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	r.Kind = wire.Kind
	switch wire.Kind {
	case ModeTimeseries:
		return json.Unmarshal(wire.Data, &r.Timeseries)
	case ModeBreakdown:
		return json.Unmarshal(wire.Data, &r.Breakdown)
	}
	return fmt.Errorf("unknown result kind %q", wire.Kind)
}
