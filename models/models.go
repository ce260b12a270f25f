// Package models defines the core data types for signalquery, the backend
// of an observability query builder over traces, logs and metrics.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DataSource identifies one of the three signal sources a query can target.
type DataSource string

const (
	// SourceTraces queries spans.
	SourceTraces DataSource = "traces"

	// SourceLogs queries log records.
	SourceLogs DataSource = "logs"

	// SourceMetrics queries metric points. Metrics queries always name a
	// metric and its type.
	SourceMetrics DataSource = "metrics"
)

// DataSources lists every supported source in display order.
var DataSources = []DataSource{SourceTraces, SourceLogs, SourceMetrics}

// ParseDataSource validates a source name coming from user input.
func ParseDataSource(s string) (DataSource, error) {
	switch DataSource(s) {
	case SourceTraces, SourceLogs, SourceMetrics:
		return DataSource(s), nil
	}
	return "", fmt.Errorf("unknown data source %q", s)
}

// ContextKind is the grammatical role the cursor occupies inside a WHERE
// clause. Suggestions reuse the same enumeration for their kind.
type ContextKind string

const (
	ContextKey         ContextKind = "key"
	ContextOperator    ContextKind = "operator"
	ContextValue       ContextKind = "value"
	ContextConjunction ContextKind = "conjunction"
)

// ClauseContext describes what the user is typing at the cursor. It is
// recomputed on every keystroke and never stored.
//
// ReplaceStart and ReplaceEnd are byte offsets into the clause delimiting
// the span an accepted suggestion overwrites. They always satisfy
// 0 <= ReplaceStart <= ReplaceEnd <= cursor <= len(clause).
type ClauseContext struct {
	// Context is the grammatical position of the cursor.
	Context ContextKind `json:"context"`

	// Query is the partial text typed at that position.
	Query string `json:"query"`

	// Key is the fixed key of the current condition. Empty while the key
	// itself is being typed.
	Key string `json:"key,omitempty"`

	ReplaceStart int `json:"replaceStart"`
	ReplaceEnd   int `json:"replaceEnd"`
}

// Suggestion is a single autocomplete entry offered for a ClauseContext.
type Suggestion struct {
	// ID is unique within one suggestion list.
	ID string `json:"id"`

	// Kind matches the context the suggestion was produced for.
	Kind ContextKind `json:"kind"`

	// Label is what the editor displays.
	Label string `json:"label"`

	// InsertText is spliced into the clause when the suggestion is chosen.
	// Values are already quoted and escaped.
	InsertText string `json:"insertText"`

	Description string `json:"description,omitempty"`
}

// AutocompleteValues is a snapshot of known facet values used to suggest
// filter values. It is always passed by value; the slices are never
// modified by the consumers.
type AutocompleteValues struct {
	Services     []string `json:"services"`
	SpanNames    []string `json:"spanNames"`
	Environments []string `json:"environments"`
	CommitShas   []string `json:"commitShas"`
	Severities   []string `json:"severities"`
	MetricTypes  []string `json:"metricTypes"`
}

// Clone returns a deep copy so a snapshot can be handed out safely.
func (v AutocompleteValues) Clone() AutocompleteValues {
	return AutocompleteValues{
		Services:     append([]string(nil), v.Services...),
		SpanNames:    append([]string(nil), v.SpanNames...),
		Environments: append([]string(nil), v.Environments...),
		CommitShas:   append([]string(nil), v.CommitShas...),
		Severities:   append([]string(nil), v.Severities...),
		MetricTypes:  append([]string(nil), v.MetricTypes...),
	}
}

// MetricType is the closed set of metric point types.
type MetricType string

const (
	MetricTypeSum                  MetricType = "sum"
	MetricTypeGauge                MetricType = "gauge"
	MetricTypeHistogram            MetricType = "histogram"
	MetricTypeExponentialHistogram MetricType = "exponential_histogram"
)

// MetricTypes lists every metric type in catalog order.
var MetricTypes = []MetricType{
	MetricTypeSum,
	MetricTypeGauge,
	MetricTypeHistogram,
	MetricTypeExponentialHistogram,
}

// IsValid reports whether t is one of the known metric types.
func (t MetricType) IsValid() bool {
	for _, known := range MetricTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DraftFilters holds the source-specific filters that are not expressed in
// the WHERE clause.
type DraftFilters struct {
	MetricName string `json:"metricName,omitempty"`
	MetricType string `json:"metricType,omitempty"`
}

// QueryDraft is the editable state of one query row before it is compiled
// into a QuerySpec. The UI owns and mutates drafts; the builder only reads
// them.
type QueryDraft struct {
	// Name identifies the query within a query set (A, B, C...).
	Name string `json:"name"`

	DataSource DataSource `json:"dataSource"`

	// Metric is the aggregation, e.g. "count" or "p95_duration".
	Metric string `json:"metric"`

	// GroupBy is empty when the user did not pick a grouping.
	GroupBy string `json:"groupBy,omitempty"`

	WhereClause string       `json:"whereClause,omitempty"`
	Filters     DraftFilters `json:"filters"`

	// BucketSeconds is the timeseries bucket width. Zero means unset.
	BucketSeconds int `json:"bucketSeconds,omitempty"`

	// Limit caps breakdown rows. Zero means unset.
	Limit int `json:"limit,omitempty"`
}

// DefaultDraft returns a new draft with the per-source defaults used when a
// query row is created.
func DefaultDraft(name string, source DataSource) QueryDraft {
	draft := QueryDraft{
		Name:       name,
		DataSource: source,
		Metric:     "count",
	}

	switch source {
	case SourceTraces:
		draft.GroupBy = "service"
	case SourceLogs:
		draft.GroupBy = "severity"
	case SourceMetrics:
		draft.Metric = "avg"
		draft.GroupBy = "service"
	}

	return draft
}

// SavedQuery is a persisted draft together with the outcome of compiling
// it. Each record is immutable; saving an edited draft creates a new one
// pointing back at its parent.
type SavedQuery struct {
	// ID is the unique identifier for this record (UUID).
	ID string `json:"id"`

	// Name is the human-readable title.
	Name string `json:"name"`

	// Mode is the builder mode the draft was compiled with.
	Mode SpecMode `json:"mode"`

	Draft QueryDraft `json:"draft"`

	// Spec is the compiled specification. Nil when the draft was rejected.
	Spec QuerySpec `json:"spec,omitempty"`

	// Rejection holds the validation message when Spec is nil.
	Rejection string `json:"rejection,omitempty"`

	// DraftHash is the SHA-256 of the draft's canonical JSON, used to detect
	// unchanged drafts.
	DraftHash string `json:"draftHash"`

	// ParentID references the record this one was derived from.
	ParentID string `json:"parentId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// Tags contains all tags associated with this record.
	Tags []*QueryTag `json:"tags,omitempty"`
}

// UnmarshalJSON restores the spec through DecodeQuerySpec.
func (q *SavedQuery) UnmarshalJSON(b []byte) error {
	type alias SavedQuery
	aux := struct {
		*alias
		Spec json.RawMessage `json:"spec,omitempty"`
	}{alias: (*alias)(q)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	q.Spec = nil
	if len(aux.Spec) > 0 && string(aux.Spec) != "null" {
		spec, err := DecodeQuerySpec(aux.Spec)
		if err != nil {
			return err
		}
		q.Spec = spec
	}
	return nil
}
