package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orian/signalquery/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeClickHouse answers facet queries by matching a column fragment.
type fakeClickHouse struct {
	mu      sync.Mutex
	answers map[string][]string
	err     error
	calls   int
	args    [][]any
}

func (f *fakeClickHouse) query(_ context.Context, query string, args ...any) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.args = append(f.args, args)
	if f.err != nil {
		return nil, f.err
	}
	for fragment, values := range f.answers {
		if strings.Contains(query, fragment) {
			return values, nil
		}
	}
	return nil, nil
}

func newTestFacetStore(ch *fakeClickHouse, now *time.Time) *FacetStore {
	store := NewFacetStore(ch.query, FacetsConfig{
		Lookback:     time.Hour,
		TTL:          time.Minute,
		Limit:        50,
		QueryTimeout: time.Second,
	}, testLogger())
	store.now = func() time.Time { return *now }
	return store
}

func TestFacetStoreValues(t *testing.T) {
	ch := &fakeClickHouse{answers: map[string][]string{
		"toString(ServiceName) AS v FROM otel_traces": {"api", "checkout"},
		"toString(SpanName)":                          {"GET /users"},
		"deployment.environment":                      {"prod", "staging"},
		"deployment.commit_sha":                       {"abc123"},
		"toString(SeverityText)":                      {"ERROR", "INFO"},
	}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestFacetStore(ch, &now)

	values := store.Values(context.Background(), models.SourceTraces)
	assert.Equal(t, []string{"api", "checkout"}, values.Services)
	assert.Equal(t, []string{"GET /users"}, values.SpanNames)
	assert.Equal(t, []string{"prod", "staging"}, values.Environments)
	assert.Equal(t, []string{"abc123"}, values.CommitShas)
	assert.Empty(t, values.Severities)
	assert.Equal(t, 4, ch.calls)

	logs := store.Values(context.Background(), models.SourceLogs)
	assert.Equal(t, []string{"ERROR", "INFO"}, logs.Severities)
	assert.Equal(t, 6, ch.calls)
}

func TestFacetStoreCaching(t *testing.T) {
	ch := &fakeClickHouse{answers: map[string][]string{
		"SeverityText": {"WARN"},
	}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestFacetStore(ch, &now)
	ctx := context.Background()

	store.Values(ctx, models.SourceLogs)
	assert.Equal(t, 2, ch.calls)

	now = now.Add(30 * time.Second)
	got := store.Values(ctx, models.SourceLogs)
	assert.Equal(t, 2, ch.calls, "served from cache within the TTL")
	assert.Equal(t, []string{"WARN"}, got.Severities)

	got.Severities[0] = "mutated"
	assert.Equal(t, []string{"WARN"}, store.Values(ctx, models.SourceLogs).Severities, "callers get copies")

	now = now.Add(time.Minute)
	store.Values(ctx, models.SourceLogs)
	assert.Equal(t, 4, ch.calls, "reloaded after the TTL")
}

func TestFacetStoreServesLastSnapshotOnError(t *testing.T) {
	ch := &fakeClickHouse{answers: map[string][]string{
		"SeverityText": {"ERROR"},
	}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestFacetStore(ch, &now)
	ctx := context.Background()

	require.NoError(t, store.Refresh(ctx, models.SourceLogs))

	ch.err = errors.New("connection refused")
	now = now.Add(time.Hour)

	got := store.Values(ctx, models.SourceLogs)
	assert.Equal(t, []string{"ERROR"}, got.Severities)
	assert.Error(t, store.Refresh(ctx, models.SourceLogs))
}

func TestFacetStoreBacksOffAfterFailure(t *testing.T) {
	ch := &fakeClickHouse{err: errors.New("connection refused")}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestFacetStore(ch, &now)
	ctx := context.Background()

	for range 5 {
		store.Values(ctx, models.SourceLogs)
	}
	assert.Equal(t, 2, ch.calls, "one failed reload per TTL")

	now = now.Add(30 * time.Second)
	store.Values(ctx, models.SourceLogs)
	assert.Equal(t, 2, ch.calls)

	ch.mu.Lock()
	ch.err = nil
	ch.answers = map[string][]string{"SeverityText": {"WARN"}}
	ch.mu.Unlock()

	now = now.Add(time.Minute)
	got := store.Values(ctx, models.SourceLogs)
	assert.Equal(t, 4, ch.calls, "retried once the TTL passed")
	assert.Equal(t, []string{"WARN"}, got.Severities)
}

func TestFacetStoreCollapsesConcurrentReloads(t *testing.T) {
	ch := &fakeClickHouse{answers: map[string][]string{
		"SeverityText": {"WARN"},
	}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestFacetStore(ch, &now)

	results := make([]models.AutocompleteValues, 8)
	entered := make(chan struct{}, 2*len(results))
	release := make(chan struct{})
	store.query = func(ctx context.Context, query string, args ...any) ([]string, error) {
		entered <- struct{}{}
		<-release
		return ch.query(ctx, query, args...)
	}

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = store.Values(context.Background(), models.SourceLogs)
		}()
	}

	<-entered
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 2, ch.calls)
	for _, got := range results {
		assert.Equal(t, []string{"WARN"}, got.Severities)
	}
}

func TestFacetStoreErrorWithoutSnapshot(t *testing.T) {
	ch := &fakeClickHouse{err: errors.New("down")}
	now := time.Now()
	store := newTestFacetStore(ch, &now)

	got := store.Values(context.Background(), models.SourceMetrics)
	assert.Empty(t, got.Services)
	assert.Empty(t, got.MetricTypes)
}

func TestFacetStoreUnknownSource(t *testing.T) {
	ch := &fakeClickHouse{}
	now := time.Now()
	store := newTestFacetStore(ch, &now)

	assert.Error(t, store.Refresh(context.Background(), models.DataSource("events")))
	assert.Zero(t, ch.calls)
}

func TestFacetQueriesArgs(t *testing.T) {
	ch := &fakeClickHouse{}
	now := time.Now()
	store := newTestFacetStore(ch, &now)

	require.NoError(t, store.Refresh(context.Background(), models.SourceMetrics))
	require.Len(t, ch.args, 2)

	// One lookback per metric table, plus the limit on the services query.
	lengths := []int{len(ch.args[0]), len(ch.args[1])}
	assert.ElementsMatch(t, []int{len(metricTables) + 1, len(metricTables)}, lengths)
	for _, args := range ch.args {
		assert.Equal(t, int64(3600), args[0])
	}
}

func TestLookbackArgs(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []any
	}{
		{
			name:  "distinct column",
			query: distinctColumn("ServiceName", "otel_logs", "Timestamp"),
			want:  []any{int64(60), 10},
		},
		{
			name:  "metric types",
			query: metricTypesQuery(),
			want:  []any{int64(60), int64(60), int64(60), int64(60)},
		},
		{
			name:  "no placeholders",
			query: "SELECT 1",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lookbackArgs(tt.query, 60, 10))
		})
	}
}

func TestFacetQueriesCoverSources(t *testing.T) {
	for _, source := range models.DataSources {
		t.Run(string(source), func(t *testing.T) {
			var values models.AutocompleteValues
			queries := facetQueries(source, &values)
			require.NotEmpty(t, queries)
			for _, q := range queries {
				assert.Contains(t, q.sql, "SELECT")
				assert.NotNil(t, q.dst)
			}
		})
	}

	var values models.AutocompleteValues
	assert.Nil(t, facetQueries(models.DataSource("events"), &values))
}
