// Package queryspec compiles query drafts into validated, source-specific
// query specifications.
//
// Each data source has its own rule set for timeseries and breakdown mode.
// A draft either compiles into a complete models.QuerySpec or is rejected
// with a *ValidationError; no partial spec is ever returned.
package queryspec

import (
	"fmt"
	"strings"

	"github.com/orian/signalquery/clause"
	"github.com/orian/signalquery/models"
)

// MaxLimit bounds the number of rows a breakdown may request.
const MaxLimit = 100

var (
	tracesMetrics = []models.TracesMetric{
		models.TracesCount,
		models.TracesAvgDuration,
		models.TracesP50Duration,
		models.TracesP95Duration,
		models.TracesP99Duration,
		models.TracesErrorRate,
	}
	tracesTimeseriesGroupBy = []models.TracesGroupBy{
		models.TracesGroupByService,
		models.TracesGroupBySpanName,
		models.TracesGroupByStatusCode,
		models.TracesGroupByHTTPMethod,
		models.TracesGroupByAttribute,
		models.TracesGroupByNone,
	}
	tracesBreakdownGroupBy = tracesTimeseriesGroupBy[:len(tracesTimeseriesGroupBy)-1]

	logsMetrics              = []models.LogsMetric{models.LogsCount}
	logsTimeseriesGroupBy    = []models.LogsGroupBy{models.LogsGroupByService, models.LogsGroupBySeverity, models.LogsGroupByNone}
	logsBreakdownGroupBy     = logsTimeseriesGroupBy[:2]
	metricsTimeseriesMetrics = []models.MetricsAggregation{
		models.MetricsAvg,
		models.MetricsSum,
		models.MetricsMin,
		models.MetricsMax,
		models.MetricsCount,
	}
	metricsBreakdownMetrics = []models.MetricsAggregation{models.MetricsAvg, models.MetricsSum, models.MetricsCount}
)

// Build compiles draft in the given mode. Rejections are returned as
// *ValidationError.
func Build(draft models.QueryDraft, mode models.SpecMode) (models.QuerySpec, error) {
	b := builderFor(draft.DataSource)
	if b == nil {
		return nil, rejectf("unknown data source %q", draft.DataSource)
	}

	switch mode {
	case models.ModeTimeseries:
		if draft.BucketSeconds < 0 {
			return nil, rejectf("bucketSeconds must be positive, got %d", draft.BucketSeconds)
		}
		return b.timeseries(draft)
	case models.ModeBreakdown:
		if draft.Limit != 0 && (draft.Limit < 1 || draft.Limit > MaxLimit) {
			return nil, rejectf("limit must be between 1 and %d, got %d", MaxLimit, draft.Limit)
		}
		return b.breakdown(draft)
	}
	return nil, rejectf("unknown query mode %q", mode)
}

// sourceBuilder holds the rule set of one data source.
type sourceBuilder interface {
	timeseries(d models.QueryDraft) (models.QuerySpec, error)
	breakdown(d models.QueryDraft) (models.QuerySpec, error)
}

func builderFor(source models.DataSource) sourceBuilder {
	switch source {
	case models.SourceTraces:
		return tracesBuilder{}
	case models.SourceLogs:
		return logsBuilder{}
	case models.SourceMetrics:
		return metricsBuilder{}
	}
	return nil
}

type tracesBuilder struct{}

func (tracesBuilder) filters(d models.QueryDraft, groupBy models.TracesGroupBy) (models.TracesFilters, error) {
	conditions, err := whereConditions(d.WhereClause)
	if err != nil {
		return models.TracesFilters{}, err
	}
	f, err := tracesFilters(conditions)
	if err != nil {
		return models.TracesFilters{}, err
	}
	if groupBy == models.TracesGroupByAttribute && f.AttributeKey == "" {
		return models.TracesFilters{}, rejectf("grouping by attribute requires an %s<key> condition in the where clause", clause.AttributeKeyPrefix)
	}
	return f, nil
}

func (b tracesBuilder) timeseries(d models.QueryDraft) (models.QuerySpec, error) {
	metric, err := oneOf("traces metric", d.Metric, tracesMetrics)
	if err != nil {
		return nil, err
	}
	var groupBy models.TracesGroupBy
	if d.GroupBy != "" {
		if groupBy, err = oneOf("traces group-by", d.GroupBy, tracesTimeseriesGroupBy); err != nil {
			return nil, err
		}
	}
	filters, err := b.filters(d, groupBy)
	if err != nil {
		return nil, err
	}

	return models.TracesTimeseriesSpec{
		SpecHeader:    header(models.ModeTimeseries, models.SourceTraces),
		Metric:        metric,
		GroupBy:       groupBy,
		Filters:       filters,
		BucketSeconds: d.BucketSeconds,
	}, nil
}

func (b tracesBuilder) breakdown(d models.QueryDraft) (models.QuerySpec, error) {
	metric, err := oneOf("traces metric", d.Metric, tracesMetrics)
	if err != nil {
		return nil, err
	}
	if d.GroupBy == "" {
		return nil, rejectf("traces breakdown requires a group-by (one of %s)", joinValues(tracesBreakdownGroupBy))
	}
	groupBy, err := oneOf("traces breakdown group-by", d.GroupBy, tracesBreakdownGroupBy)
	if err != nil {
		return nil, err
	}
	filters, err := b.filters(d, groupBy)
	if err != nil {
		return nil, err
	}

	return models.TracesBreakdownSpec{
		SpecHeader: header(models.ModeBreakdown, models.SourceTraces),
		Metric:     metric,
		GroupBy:    groupBy,
		Filters:    filters,
		Limit:      d.Limit,
	}, nil
}

type logsBuilder struct{}

func (logsBuilder) filters(d models.QueryDraft) (models.LogsFilters, error) {
	conditions, err := whereConditions(d.WhereClause)
	if err != nil {
		return models.LogsFilters{}, err
	}
	return logsFilters(conditions)
}

func (b logsBuilder) timeseries(d models.QueryDraft) (models.QuerySpec, error) {
	metric, err := oneOf("logs metric", d.Metric, logsMetrics)
	if err != nil {
		return nil, err
	}
	var groupBy models.LogsGroupBy
	if d.GroupBy != "" {
		if groupBy, err = oneOf("logs group-by", d.GroupBy, logsTimeseriesGroupBy); err != nil {
			return nil, err
		}
	}
	filters, err := b.filters(d)
	if err != nil {
		return nil, err
	}

	return models.LogsTimeseriesSpec{
		SpecHeader:    header(models.ModeTimeseries, models.SourceLogs),
		Metric:        metric,
		GroupBy:       groupBy,
		Filters:       filters,
		BucketSeconds: d.BucketSeconds,
	}, nil
}

func (b logsBuilder) breakdown(d models.QueryDraft) (models.QuerySpec, error) {
	metric, err := oneOf("logs metric", d.Metric, logsMetrics)
	if err != nil {
		return nil, err
	}
	if d.GroupBy == "" {
		return nil, rejectf("logs breakdown requires a group-by (one of %s)", joinValues(logsBreakdownGroupBy))
	}
	groupBy, err := oneOf("logs breakdown group-by", d.GroupBy, logsBreakdownGroupBy)
	if err != nil {
		return nil, err
	}
	filters, err := b.filters(d)
	if err != nil {
		return nil, err
	}

	return models.LogsBreakdownSpec{
		SpecHeader: header(models.ModeBreakdown, models.SourceLogs),
		Metric:     metric,
		GroupBy:    groupBy,
		Filters:    filters,
		Limit:      d.Limit,
	}, nil
}

type metricsBuilder struct{}

func (metricsBuilder) filters(d models.QueryDraft) (models.MetricsFilters, error) {
	conditions, err := whereConditions(d.WhereClause)
	if err != nil {
		return models.MetricsFilters{}, err
	}
	return metricsFilters(d.Filters, conditions)
}

func (b metricsBuilder) timeseries(d models.QueryDraft) (models.QuerySpec, error) {
	metric, err := oneOf("metrics aggregation", d.Metric, metricsTimeseriesMetrics)
	if err != nil {
		return nil, err
	}

	groupBy := models.MetricsGroupByService
	switch models.MetricsGroupBy(d.GroupBy) {
	case "", models.MetricsGroupByService:
	case models.MetricsGroupByNone:
		groupBy = models.MetricsGroupByNone
	default:
		return nil, rejectf("metrics group-by %q is not supported (want service or none)", d.GroupBy)
	}

	filters, err := b.filters(d)
	if err != nil {
		return nil, err
	}

	return models.MetricsTimeseriesSpec{
		SpecHeader:    header(models.ModeTimeseries, models.SourceMetrics),
		Metric:        metric,
		GroupBy:       groupBy,
		Filters:       filters,
		BucketSeconds: d.BucketSeconds,
	}, nil
}

func (b metricsBuilder) breakdown(d models.QueryDraft) (models.QuerySpec, error) {
	metric, err := oneOf("metrics breakdown aggregation", d.Metric, metricsBreakdownMetrics)
	if err != nil {
		return nil, err
	}
	switch models.MetricsGroupBy(d.GroupBy) {
	case "", models.MetricsGroupByService:
	default:
		return nil, rejectf("metrics breakdown can only group by service, got %q", d.GroupBy)
	}

	filters, err := b.filters(d)
	if err != nil {
		return nil, err
	}

	return models.MetricsBreakdownSpec{
		SpecHeader: header(models.ModeBreakdown, models.SourceMetrics),
		Metric:     metric,
		GroupBy:    models.MetricsGroupByService,
		Filters:    filters,
		Limit:      d.Limit,
	}, nil
}

func header(mode models.SpecMode, source models.DataSource) models.SpecHeader {
	return models.SpecHeader{SpecKind: mode, SpecSource: source}
}

// oneOf converts value to T if it is one of allowed.
func oneOf[T ~string](what, value string, allowed []T) (T, error) {
	if value == "" {
		return "", rejectf("%s is required (want one of %s)", what, joinValues(allowed))
	}
	for _, a := range allowed {
		if string(a) == value {
			return a, nil
		}
	}
	return "", rejectf("%s %q is not supported (want one of %s)", what, value, joinValues(allowed))
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// Result is the outcome of compiling one draft of a query set.
type Result struct {
	Name string
	Spec models.QuerySpec
	Err  error
}

// BuildAll compiles every draft of a query set in order. Names must be
// unique; a repeated name rejects the later draft.
func BuildAll(drafts []models.QueryDraft, mode models.SpecMode) []Result {
	results := make([]Result, 0, len(drafts))
	seen := make(map[string]bool, len(drafts))

	for i, d := range drafts {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}

		var (
			spec models.QuerySpec
			err  error
		)
		if seen[name] {
			err = rejectf("duplicate query name %q", name)
		} else {
			seen[name] = true
			spec, err = Build(d, mode)
		}

		if verr, ok := err.(*ValidationError); ok {
			verr.Query = name
		}
		results = append(results, Result{Name: name, Spec: spec, Err: err})
	}
	return results
}
