package clause

import (
	"fmt"
	"testing"

	"github.com/orian/signalquery/models"
	"github.com/stretchr/testify/assert"
)

func labels(suggestions []models.Suggestion) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.Label)
	}
	return out
}

func TestBuildSuggestions(t *testing.T) {
	values := models.AutocompleteValues{
		Services:     []string{" checkout ", "checkout", "", "api-checkout", "cart"},
		SpanNames:    []string{"GET /cart"},
		Environments: []string{"prod", "staging"},
		CommitShas:   []string{"abc123"},
		Severities:   []string{"INFO", "ERROR"},
	}

	tests := []struct {
		name   string
		ctx    models.ClauseContext
		source models.DataSource
		values models.AutocompleteValues
		want   []string
	}{
		{
			name:   "all trace keys",
			ctx:    models.ClauseContext{Context: models.ContextKey},
			source: models.SourceTraces,
			want: []string{
				"service.name", "span.name", "deployment.environment",
				"deployment.commit_sha", "root_only", "attr.<key>",
			},
		},
		{
			name:   "log keys by prefix",
			ctx:    models.ClauseContext{Context: models.ContextKey, Query: "sev"},
			source: models.SourceLogs,
			want:   []string{"severity"},
		},
		{
			name:   "metric keys",
			ctx:    models.ClauseContext{Context: models.ContextKey},
			source: models.SourceMetrics,
			want:   []string{"service.name", "metric.type"},
		},
		{
			name:   "substring matches keep catalog order",
			ctx:    models.ClauseContext{Context: models.ContextKey, Query: "name"},
			source: models.SourceTraces,
			want:   []string{"service.name", "span.name"},
		},
		{
			name:   "key query is case-insensitive",
			ctx:    models.ClauseContext{Context: models.ContextKey, Query: "ROOT"},
			source: models.SourceTraces,
			want:   []string{"root_only"},
		},
		{
			name:   "operator",
			ctx:    models.ClauseContext{Context: models.ContextOperator, Key: "service.name"},
			source: models.SourceLogs,
			want:   []string{"="},
		},
		{
			name:   "operator mismatch",
			ctx:    models.ClauseContext{Context: models.ContextOperator, Query: "!", Key: "service.name"},
			source: models.SourceLogs,
			want:   []string{},
		},
		{
			name:   "conjunction",
			ctx:    models.ClauseContext{Context: models.ContextConjunction, Key: "severity"},
			source: models.SourceLogs,
			want:   []string{"AND"},
		},
		{
			name:   "partial lowercase conjunction",
			ctx:    models.ClauseContext{Context: models.ContextConjunction, Query: "an", Key: "severity"},
			source: models.SourceLogs,
			want:   []string{"AND"},
		},
		{
			name:   "root_only is boolean regardless of values",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "root_only"},
			source: models.SourceTraces,
			values: values,
			want:   []string{"true", "false"},
		},
		{
			name:   "root.only alias",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "root.only"},
			source: models.SourceTraces,
			want:   []string{"true", "false"},
		},
		{
			name:   "services trimmed and deduplicated",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "service.name"},
			source: models.SourceTraces,
			values: values,
			want:   []string{"checkout", "api-checkout", "cart"},
		},
		{
			name:   "prefix matches rank before substring matches",
			ctx:    models.ClauseContext{Context: models.ContextValue, Query: "check", Key: "service"},
			source: models.SourceTraces,
			values: values,
			want:   []string{"checkout", "api-checkout"},
		},
		{
			name:   "env alias",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "env"},
			source: models.SourceTraces,
			values: values,
			want:   []string{"prod", "staging"},
		},
		{
			name:   "commit_sha alias",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "commit_sha"},
			source: models.SourceTraces,
			values: values,
			want:   []string{"abc123"},
		},
		{
			name:   "severities for logs",
			ctx:    models.ClauseContext{Context: models.ContextValue, Query: "err", Key: "severity"},
			source: models.SourceLogs,
			values: values,
			want:   []string{"ERROR"},
		},
		{
			name:   "severity is not a trace key",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "severity"},
			source: models.SourceTraces,
			values: values,
			want:   []string{},
		},
		{
			name:   "attribute values are unknown",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "attr.http.route"},
			source: models.SourceTraces,
			values: values,
			want:   []string{},
		},
		{
			name:   "all metric types by default",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "metric.type"},
			source: models.SourceMetrics,
			want:   []string{"sum", "gauge", "histogram", "exponential_histogram"},
		},
		{
			name:   "metric types restricted to known reported ones",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "metric.type"},
			source: models.SourceMetrics,
			values: models.AutocompleteValues{MetricTypes: []string{"gauge", "bogus", "sum", "gauge"}},
			want:   []string{"gauge", "sum"},
		},
		{
			name:   "only unknown metric types falls back to all",
			ctx:    models.ClauseContext{Context: models.ContextValue, Key: "metric.type"},
			source: models.SourceMetrics,
			values: models.AutocompleteValues{MetricTypes: []string{"summary"}},
			want:   []string{"sum", "gauge", "histogram", "exponential_histogram"},
		},
		{
			name:   "unknown source",
			ctx:    models.ClauseContext{Context: models.ContextKey},
			source: models.DataSource("profiles"),
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSuggestions(tt.ctx, tt.source, tt.values, 0)
			assert.Equal(t, tt.want, labels(got))
			for _, s := range got {
				assert.Equal(t, tt.ctx.Context, s.Kind)
			}
		})
	}
}

func TestBuildSuggestionsQuotesValues(t *testing.T) {
	ctx := models.ClauseContext{Context: models.ContextValue, Key: "span.name"}
	values := models.AutocompleteValues{SpanNames: []string{`say "hi"`, `C:\tmp`}}

	got := BuildSuggestions(ctx, models.SourceTraces, values, 0)

	if assert.Len(t, got, 2) {
		assert.Equal(t, `"say \"hi\""`, got[0].InsertText)
		assert.Equal(t, `say "hi"`, got[0].Label)
		assert.Equal(t, `"C:\\tmp"`, got[1].InsertText)
	}
}

func TestBuildSuggestionsLimit(t *testing.T) {
	var services []string
	for i := 0; i < 20; i++ {
		services = append(services, fmt.Sprintf("svc-%02d", i))
	}
	values := models.AutocompleteValues{Services: services}
	ctx := models.ClauseContext{Context: models.ContextValue, Key: "service.name"}

	tests := []struct {
		name string
		max  int
		want int
	}{
		{name: "default", max: 0, want: DefaultMaxSuggestions},
		{name: "negative uses default", max: -1, want: DefaultMaxSuggestions},
		{name: "explicit", max: 3, want: 3},
		{name: "larger than candidates", max: 50, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSuggestions(ctx, models.SourceLogs, values, tt.max)
			assert.Len(t, got, tt.want)
			assert.Equal(t, "svc-00", got[0].Label)
		})
	}
}

func TestBuildSuggestionsUniqueIDs(t *testing.T) {
	got := BuildSuggestions(models.ClauseContext{Context: models.ContextKey}, models.SourceTraces, models.AutocompleteValues{}, 10)

	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
	}
}

func TestBuildSuggestionsDoesNotModifyValues(t *testing.T) {
	services := []string{" b ", "a", "a"}
	values := models.AutocompleteValues{Services: services}

	BuildSuggestions(models.ClauseContext{Context: models.ContextValue, Key: "service.name"}, models.SourceLogs, values, 0)

	assert.Equal(t, []string{" b ", "a", "a"}, services)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"service", KeyServiceName},
		{" Service.Name ", KeyServiceName},
		{"span", KeySpanName},
		{"env", KeyEnvironment},
		{"environment", KeyEnvironment},
		{"commit_sha", KeyCommitSha},
		{"root.only", KeyRootOnly},
		{"attr.http.method", KeyAttributeAny},
		{"status.code", "status.code"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.key))
		})
	}
}
