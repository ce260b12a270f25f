package clause

import (
	"strings"

	"github.com/orian/signalquery/models"
)

// Canonical filter keys understood by the clause language.
const (
	KeyServiceName     = "service.name"
	KeySpanName        = "span.name"
	KeyEnvironment     = "deployment.environment"
	KeyCommitSha       = "deployment.commit_sha"
	KeyRootOnly        = "root_only"
	KeySeverity        = "severity"
	KeyMetricType      = "metric.type"
	KeyAttributeAny    = "attr.*"
	AttributeKeyPrefix = "attr."
)

// Operator is the only comparison operator of the clause language.
const Operator = "="

// Conjunction is the only keyword joining conditions.
const Conjunction = "AND"

var keyAliases = map[string]string{
	"service":     KeyServiceName,
	"span":        KeySpanName,
	"env":         KeyEnvironment,
	"environment": KeyEnvironment,
	"commit_sha":  KeyCommitSha,
	"root.only":   KeyRootOnly,
}

// NormalizeKey maps a typed key to its canonical form. Every attr.<name>
// key collapses to KeyAttributeAny; unknown keys are returned lower-cased.
func NormalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if canonical, ok := keyAliases[k]; ok {
		return canonical
	}
	if strings.HasPrefix(k, AttributeKeyPrefix) {
		return KeyAttributeAny
	}
	return k
}

type keyEntry struct {
	label       string
	insertText  string
	description string
}

// catalog is the vocabulary of one data source. Implementations are
// selected by catalogFor.
type catalog interface {
	keys() []keyEntry

	// values returns raw (unquoted) value candidates for a canonical key.
	values(key string, v models.AutocompleteValues) []string
}

// catalogFor returns the catalog of a source, or nil for an unknown one.
func catalogFor(source models.DataSource) catalog {
	switch source {
	case models.SourceTraces:
		return tracesCatalog{}
	case models.SourceLogs:
		return logsCatalog{}
	case models.SourceMetrics:
		return metricsCatalog{}
	}
	return nil
}

var serviceKey = keyEntry{KeyServiceName, KeyServiceName, "Service emitting the signal"}

type tracesCatalog struct{}

func (tracesCatalog) keys() []keyEntry {
	return []keyEntry{
		serviceKey,
		{KeySpanName, KeySpanName, "Span operation name"},
		{KeyEnvironment, KeyEnvironment, "Deployment environment resource attribute"},
		{KeyCommitSha, KeyCommitSha, "Deployed commit SHA"},
		{KeyRootOnly, KeyRootOnly, "Only match root spans"},
		{"attr.<key>", AttributeKeyPrefix, "Span attribute by name"},
	}
}

func (tracesCatalog) values(key string, v models.AutocompleteValues) []string {
	switch key {
	case KeyServiceName:
		return dedupe(v.Services)
	case KeySpanName:
		return dedupe(v.SpanNames)
	case KeyEnvironment:
		return dedupe(v.Environments)
	case KeyCommitSha:
		return dedupe(v.CommitShas)
	case KeyRootOnly:
		return []string{"true", "false"}
	}
	return nil
}

type logsCatalog struct{}

func (logsCatalog) keys() []keyEntry {
	return []keyEntry{
		serviceKey,
		{KeySeverity, KeySeverity, "Log severity text"},
	}
}

func (logsCatalog) values(key string, v models.AutocompleteValues) []string {
	switch key {
	case KeyServiceName:
		return dedupe(v.Services)
	case KeySeverity:
		return dedupe(v.Severities)
	}
	return nil
}

type metricsCatalog struct{}

func (metricsCatalog) keys() []keyEntry {
	return []keyEntry{
		serviceKey,
		{KeyMetricType, KeyMetricType, "Metric point type"},
	}
}

func (metricsCatalog) values(key string, v models.AutocompleteValues) []string {
	switch key {
	case KeyServiceName:
		return dedupe(v.Services)
	case KeyMetricType:
		return metricTypeValues(v.MetricTypes)
	}
	return nil
}

// metricTypeValues restricts the closed metric type list to the types the
// caller reports, in the caller's order. Unknown entries are dropped; an
// empty or fully unknown list yields every type.
func metricTypeValues(reported []string) []string {
	var out []string
	for _, t := range dedupe(reported) {
		if models.MetricType(t).IsValid() {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		return out
	}

	out = make([]string, 0, len(models.MetricTypes))
	for _, t := range models.MetricTypes {
		out = append(out, string(t))
	}
	return out
}

// dedupe trims values and drops blanks and repeats, keeping first
// occurrences. The input slice is not modified.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
