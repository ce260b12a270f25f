package queryspec

import (
	"errors"
	"strings"

	"github.com/orian/signalquery/clause"
	"github.com/orian/signalquery/models"
)

// whereConditions parses a draft's WHERE clause, turning syntax errors into
// rejections.
func whereConditions(where string) ([]clause.Condition, error) {
	conditions, err := clause.Parse(where)
	var perr *clause.ParseError
	if errors.As(err, &perr) {
		return nil, rejectf("invalid where clause: %s at offset %d", perr.Message, perr.Offset)
	}
	if err != nil {
		return nil, rejectf("invalid where clause: %v", err)
	}
	return conditions, nil
}

// scalar assigns a single-valued filter, rejecting a second condition on
// the same key.
func scalar(dst *string, c clause.Condition) error {
	if *dst != "" {
		return rejectf("%s may only be filtered once", c.Key)
	}
	*dst = c.Value
	return nil
}

func tracesFilters(conditions []clause.Condition) (models.TracesFilters, error) {
	var f models.TracesFilters
	rootSeen := false

	for _, c := range conditions {
		if c.Value == "" {
			return models.TracesFilters{}, rejectf("%s needs a non-empty value", c.Key)
		}

		var err error
		switch clause.NormalizeKey(c.Key) {
		case clause.KeyServiceName:
			err = scalar(&f.ServiceName, c)
		case clause.KeySpanName:
			err = scalar(&f.SpanName, c)
		case clause.KeyEnvironment:
			f.Environments = appendUnique(f.Environments, c.Value)
		case clause.KeyCommitSha:
			f.CommitShas = appendUnique(f.CommitShas, c.Value)
		case clause.KeyRootOnly:
			if rootSeen {
				return models.TracesFilters{}, rejectf("%s may only be filtered once", c.Key)
			}
			rootSeen = true
			switch strings.ToLower(c.Value) {
			case "true":
				f.RootSpansOnly = true
			case "false":
			default:
				err = rejectf("%s must be true or false, got %q", c.Key, c.Value)
			}
		case clause.KeyAttributeAny:
			name := strings.TrimSpace(c.Key)[len(clause.AttributeKeyPrefix):]
			if name == "" {
				err = rejectf("attribute filter needs a name after %q", clause.AttributeKeyPrefix)
				break
			}
			if f.AttributeKey != "" {
				err = rejectf("only one attribute filter is supported, got %s and %s", f.AttributeKey, name)
				break
			}
			f.AttributeKey, f.AttributeValue = name, c.Value
		default:
			err = unknownKey(models.SourceTraces, c)
		}
		if err != nil {
			return models.TracesFilters{}, err
		}
	}
	return f, nil
}

func logsFilters(conditions []clause.Condition) (models.LogsFilters, error) {
	var f models.LogsFilters
	for _, c := range conditions {
		if c.Value == "" {
			return models.LogsFilters{}, rejectf("%s needs a non-empty value", c.Key)
		}

		var err error
		switch clause.NormalizeKey(c.Key) {
		case clause.KeyServiceName:
			err = scalar(&f.ServiceName, c)
		case clause.KeySeverity:
			err = scalar(&f.Severity, c)
		default:
			err = unknownKey(models.SourceLogs, c)
		}
		if err != nil {
			return models.LogsFilters{}, err
		}
	}
	return f, nil
}

// metricsFilters combines the draft's metric filters with the WHERE clause.
// A metric.type condition fills an empty draft type and must agree with a
// set one.
func metricsFilters(draft models.DraftFilters, conditions []clause.Condition) (models.MetricsFilters, error) {
	f := models.MetricsFilters{
		MetricName: strings.TrimSpace(draft.MetricName),
		MetricType: models.MetricType(strings.TrimSpace(draft.MetricType)),
	}

	var whereType string
	for _, c := range conditions {
		if c.Value == "" {
			return models.MetricsFilters{}, rejectf("%s needs a non-empty value", c.Key)
		}

		var err error
		switch clause.NormalizeKey(c.Key) {
		case clause.KeyServiceName:
			err = scalar(&f.ServiceName, c)
		case clause.KeyMetricType:
			err = scalar(&whereType, c)
		default:
			err = unknownKey(models.SourceMetrics, c)
		}
		if err != nil {
			return models.MetricsFilters{}, err
		}
	}

	if whereType != "" {
		switch {
		case f.MetricType == "":
			f.MetricType = models.MetricType(whereType)
		case string(f.MetricType) != whereType:
			return models.MetricsFilters{}, rejectf("metric.type %q in where clause conflicts with metricType %q", whereType, f.MetricType)
		}
	}

	var missing []string
	if f.MetricName == "" {
		missing = append(missing, "metricName")
	}
	if f.MetricType == "" {
		missing = append(missing, "metricType")
	}
	if len(missing) > 0 {
		return models.MetricsFilters{}, rejectf("metrics queries require %s", strings.Join(missing, " and "))
	}
	if !f.MetricType.IsValid() {
		return models.MetricsFilters{}, rejectf("metricType %q is not supported (want one of %s)", f.MetricType, joinValues(models.MetricTypes))
	}
	return f, nil
}

func unknownKey(source models.DataSource, c clause.Condition) error {
	return rejectf("unknown %s filter key %q", source, c.Key)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
