package models

import (
	"encoding/json"
	"fmt"
)

// SpecMode selects the result shape a query produces.
type SpecMode string

const (
	// ModeTimeseries produces one value per time bucket and series.
	ModeTimeseries SpecMode = "timeseries"

	// ModeBreakdown produces one value per group over the whole range.
	ModeBreakdown SpecMode = "breakdown"
)

// ParseSpecMode validates a mode name coming from user input. An empty
// string selects timeseries.
func ParseSpecMode(s string) (SpecMode, error) {
	switch SpecMode(s) {
	case "":
		return ModeTimeseries, nil
	case ModeTimeseries, ModeBreakdown:
		return SpecMode(s), nil
	}
	return "", fmt.Errorf("unknown query mode %q", s)
}

// TracesMetric is an aggregation over spans.
type TracesMetric string

const (
	TracesCount       TracesMetric = "count"
	TracesAvgDuration TracesMetric = "avg_duration"
	TracesP50Duration TracesMetric = "p50_duration"
	TracesP95Duration TracesMetric = "p95_duration"
	TracesP99Duration TracesMetric = "p99_duration"
	TracesErrorRate   TracesMetric = "error_rate"
)

// TracesGroupBy is a span dimension to group on.
type TracesGroupBy string

const (
	TracesGroupByService    TracesGroupBy = "service"
	TracesGroupBySpanName   TracesGroupBy = "span_name"
	TracesGroupByStatusCode TracesGroupBy = "status_code"
	TracesGroupByHTTPMethod TracesGroupBy = "http_method"
	TracesGroupByAttribute  TracesGroupBy = "attribute"
	TracesGroupByNone       TracesGroupBy = "none"
)

// LogsMetric is an aggregation over log records.
type LogsMetric string

const LogsCount LogsMetric = "count"

// LogsGroupBy is a log dimension to group on.
type LogsGroupBy string

const (
	LogsGroupByService  LogsGroupBy = "service"
	LogsGroupBySeverity LogsGroupBy = "severity"
	LogsGroupByNone     LogsGroupBy = "none"
)

// MetricsAggregation is an aggregation over metric points.
type MetricsAggregation string

const (
	MetricsAvg   MetricsAggregation = "avg"
	MetricsSum   MetricsAggregation = "sum"
	MetricsMin   MetricsAggregation = "min"
	MetricsMax   MetricsAggregation = "max"
	MetricsCount MetricsAggregation = "count"
)

// MetricsGroupBy is the grouping of a metrics query.
type MetricsGroupBy string

const (
	MetricsGroupByService MetricsGroupBy = "service"
	MetricsGroupByNone    MetricsGroupBy = "none"
)

// QuerySpec is a validated, self-describing query specification ready for
// execution. The set of implementations is closed: one per source and mode.
type QuerySpec interface {
	Kind() SpecMode
	Source() DataSource
	isQuerySpec()
}

// SpecHeader carries the discriminators every spec serializes.
type SpecHeader struct {
	SpecKind   SpecMode   `json:"kind"`
	SpecSource DataSource `json:"source"`
}

func (h SpecHeader) Kind() SpecMode     { return h.SpecKind }
func (h SpecHeader) Source() DataSource { return h.SpecSource }

// TracesFilters are the span filters extracted from a WHERE clause.
type TracesFilters struct {
	ServiceName    string   `json:"serviceName,omitempty"`
	SpanName       string   `json:"spanName,omitempty"`
	RootSpansOnly  bool     `json:"rootSpansOnly,omitempty"`
	Environments   []string `json:"environments,omitempty"`
	CommitShas     []string `json:"commitShas,omitempty"`
	AttributeKey   string   `json:"attributeKey,omitempty"`
	AttributeValue string   `json:"attributeValue,omitempty"`
}

// LogsFilters are the log filters extracted from a WHERE clause.
type LogsFilters struct {
	ServiceName string `json:"serviceName,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// MetricsFilters identify the metric being queried. MetricName and
// MetricType are always set on a built spec.
type MetricsFilters struct {
	MetricName  string     `json:"metricName"`
	MetricType  MetricType `json:"metricType"`
	ServiceName string     `json:"serviceName,omitempty"`
}

// TracesTimeseriesSpec buckets a span aggregation over time.
type TracesTimeseriesSpec struct {
	SpecHeader
	Metric        TracesMetric  `json:"metric"`
	GroupBy       TracesGroupBy `json:"groupBy,omitempty"`
	Filters       TracesFilters `json:"filters"`
	BucketSeconds int           `json:"bucketSeconds,omitempty"`
}

// TracesBreakdownSpec ranks span groups by an aggregation.
type TracesBreakdownSpec struct {
	SpecHeader
	Metric  TracesMetric  `json:"metric"`
	GroupBy TracesGroupBy `json:"groupBy"`
	Filters TracesFilters `json:"filters"`
	Limit   int           `json:"limit,omitempty"`
}

// LogsTimeseriesSpec buckets log counts over time.
type LogsTimeseriesSpec struct {
	SpecHeader
	Metric        LogsMetric  `json:"metric"`
	GroupBy       LogsGroupBy `json:"groupBy,omitempty"`
	Filters       LogsFilters `json:"filters"`
	BucketSeconds int         `json:"bucketSeconds,omitempty"`
}

// LogsBreakdownSpec ranks log groups by count.
type LogsBreakdownSpec struct {
	SpecHeader
	Metric  LogsMetric  `json:"metric"`
	GroupBy LogsGroupBy `json:"groupBy"`
	Filters LogsFilters `json:"filters"`
	Limit   int         `json:"limit,omitempty"`
}

// MetricsTimeseriesSpec buckets a metric aggregation over time.
type MetricsTimeseriesSpec struct {
	SpecHeader
	Metric        MetricsAggregation `json:"metric"`
	GroupBy       MetricsGroupBy     `json:"groupBy"`
	Filters       MetricsFilters     `json:"filters"`
	BucketSeconds int                `json:"bucketSeconds,omitempty"`
}

// MetricsBreakdownSpec ranks services by a metric aggregation.
type MetricsBreakdownSpec struct {
	SpecHeader
	Metric  MetricsAggregation `json:"metric"`
	GroupBy MetricsGroupBy     `json:"groupBy"`
	Filters MetricsFilters     `json:"filters"`
	Limit   int                `json:"limit,omitempty"`
}

func (TracesTimeseriesSpec) isQuerySpec()  {}
func (TracesBreakdownSpec) isQuerySpec()   {}
func (LogsTimeseriesSpec) isQuerySpec()    {}
func (LogsBreakdownSpec) isQuerySpec()     {}
func (MetricsTimeseriesSpec) isQuerySpec() {}
func (MetricsBreakdownSpec) isQuerySpec()  {}

// DecodeQuerySpec restores a spec from its JSON form using the kind and
// source discriminators.
func DecodeQuerySpec(data []byte) (QuerySpec, error) {
	var header SpecHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decoding spec header: %w", err)
	}

	switch {
	case header.SpecSource == SourceTraces && header.SpecKind == ModeTimeseries:
		return decodeInto[TracesTimeseriesSpec](data)
	case header.SpecSource == SourceTraces && header.SpecKind == ModeBreakdown:
		return decodeInto[TracesBreakdownSpec](data)
	case header.SpecSource == SourceLogs && header.SpecKind == ModeTimeseries:
		return decodeInto[LogsTimeseriesSpec](data)
	case header.SpecSource == SourceLogs && header.SpecKind == ModeBreakdown:
		return decodeInto[LogsBreakdownSpec](data)
	case header.SpecSource == SourceMetrics && header.SpecKind == ModeTimeseries:
		return decodeInto[MetricsTimeseriesSpec](data)
	case header.SpecSource == SourceMetrics && header.SpecKind == ModeBreakdown:
		return decodeInto[MetricsBreakdownSpec](data)
	}
	return nil, fmt.Errorf("unknown spec shape %s/%s", header.SpecSource, header.SpecKind)
}

func decodeInto[T QuerySpec](data []byte) (QuerySpec, error) {
	var spec T
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", spec, err)
	}
	return spec, nil
}
