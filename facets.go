package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/orian/signalquery/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// stringQuerier runs a query returning a single string column.
type stringQuerier func(ctx context.Context, query string, args ...any) ([]string, error)

// clickhouseStrings adapts a ClickHouse connection to a stringQuerier.
func clickhouseStrings(conn driver.Conn) stringQuerier {
	return func(ctx context.Context, query string, args ...any) ([]string, error) {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		lines, err := scanTextRows(rows)
		if err != nil {
			return nil, err
		}
		return lines, rows.Err()
	}
}

// scanTextRows scans rows that return a single text column.
func scanTextRows(rows driver.Rows) ([]string, error) {
	var lines []string

	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// metricTables maps metric types to the OpenTelemetry exporter tables.
var metricTables = []struct {
	typ   models.MetricType
	table string
}{
	{models.MetricTypeSum, "otel_metrics_sum"},
	{models.MetricTypeGauge, "otel_metrics_gauge"},
	{models.MetricTypeHistogram, "otel_metrics_histogram"},
	{models.MetricTypeExponentialHistogram, "otel_metrics_exponential_histogram"},
}

// facetQuery loads one list of an AutocompleteValues snapshot.
type facetQuery struct {
	name string
	sql  string
	dst  *[]string
}

func distinctColumn(column, table, timeColumn string) string {
	return fmt.Sprintf(`SELECT DISTINCT toString(%[1]s) AS v FROM %[2]s WHERE %[3]s >= now() - INTERVAL ? SECOND AND v != '' ORDER BY v LIMIT ?`,
		column, table, timeColumn)
}

// metricServicesQuery collects service names across every metric table.
func metricServicesQuery() string {
	parts := make([]string, len(metricTables))
	for i, t := range metricTables {
		parts[i] = fmt.Sprintf("SELECT ServiceName FROM %s WHERE TimeUnix >= now() - INTERVAL ? SECOND", t.table)
	}
	return "SELECT DISTINCT toString(ServiceName) AS v FROM (" + strings.Join(parts, " UNION ALL ") + ") WHERE v != '' ORDER BY v LIMIT ?"
}

// facetQueries lists the queries filling values for a source.
func facetQueries(source models.DataSource, values *models.AutocompleteValues) []facetQuery {
	switch source {
	case models.SourceTraces:
		return []facetQuery{
			{"services", distinctColumn("ServiceName", "otel_traces", "Timestamp"), &values.Services},
			{"span_names", distinctColumn("SpanName", "otel_traces", "Timestamp"), &values.SpanNames},
			{"environments", distinctColumn("ResourceAttributes['deployment.environment']", "otel_traces", "Timestamp"), &values.Environments},
			{"commit_shas", distinctColumn("ResourceAttributes['deployment.commit_sha']", "otel_traces", "Timestamp"), &values.CommitShas},
		}
	case models.SourceLogs:
		return []facetQuery{
			{"services", distinctColumn("ServiceName", "otel_logs", "Timestamp"), &values.Services},
			{"severities", distinctColumn("SeverityText", "otel_logs", "Timestamp"), &values.Severities},
		}
	case models.SourceMetrics:
		return []facetQuery{
			{"services", metricServicesQuery(), &values.Services},
			{"metric_types", metricTypesQuery(), &values.MetricTypes},
		}
	}
	return nil
}

// metricTypesQuery returns the metric types that have recent points, in
// catalog order.
func metricTypesQuery() string {
	parts := make([]string, len(metricTables))
	for i, t := range metricTables {
		parts[i] = fmt.Sprintf("SELECT %d AS o, '%s' AS v FROM %s WHERE TimeUnix >= now() - INTERVAL ? SECOND LIMIT 1",
			i, t.typ, t.table)
	}
	return "SELECT v FROM (" + strings.Join(parts, " UNION ALL ") + ") ORDER BY o"
}

type facetSnapshot struct {
	values   models.AutocompleteValues
	loadedAt time.Time
	// retryAt is set after a failed reload; no reload is attempted before it.
	retryAt time.Time
}

func (s facetSnapshot) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.loadedAt) < ttl || now.Before(s.retryAt)
}

// FacetStore serves autocomplete values per source from ClickHouse. Loaded
// snapshots are cached for the configured TTL. When a reload fails the last
// good snapshot keeps being served and the next reload waits another TTL.
// Concurrent reloads of one source share a single ClickHouse round trip.
type FacetStore struct {
	query stringQuerier
	cfg   FacetsConfig
	log   logrus.FieldLogger
	now   func() time.Time
	group singleflight.Group

	mu        sync.RWMutex
	snapshots map[models.DataSource]facetSnapshot
}

// NewFacetStore creates a FacetStore reading through query.
func NewFacetStore(query stringQuerier, cfg FacetsConfig, log logrus.FieldLogger) *FacetStore {
	return &FacetStore{
		query:     query,
		cfg:       cfg,
		log:       log.WithField("component", "facets"),
		now:       time.Now,
		snapshots: make(map[models.DataSource]facetSnapshot),
	}
}

// Values returns a copy of the current values for source, reloading them
// when the cached snapshot is older than the TTL.
func (f *FacetStore) Values(ctx context.Context, source models.DataSource) models.AutocompleteValues {
	snap, ok := f.snapshot(source)
	if ok && snap.fresh(f.now(), f.cfg.TTL) {
		return snap.values.Clone()
	}

	// The shared reload outlives any single caller's request.
	_, err, _ := f.group.Do(string(source), func() (any, error) {
		if cur, ok := f.snapshot(source); ok && cur.fresh(f.now(), f.cfg.TTL) {
			return nil, nil
		}
		return nil, f.Refresh(context.WithoutCancel(ctx), source)
	})
	if err != nil {
		f.log.WithError(err).WithField("source", source).Warn("Failed to load facets, serving last snapshot")
	}

	snap, _ = f.snapshot(source)
	return snap.values.Clone()
}

func (f *FacetStore) snapshot(source models.DataSource) (facetSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, ok := f.snapshots[source]
	return snap, ok
}

// Refresh loads all facets of source concurrently and replaces the cached
// snapshot. On error the previous snapshot is kept and reloads through Values
// are suspended for one TTL.
func (f *FacetStore) Refresh(ctx context.Context, source models.DataSource) (err error) {
	start := time.Now()
	defer func() {
		FacetLoadsTotal.WithLabelValues(string(source), statusLabel(err)).Inc()
		FacetLoadDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	}()

	var values models.AutocompleteValues
	queries := facetQueries(source, &values)
	if queries == nil {
		return fmt.Errorf("unknown data source %q", source)
	}

	if f.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.QueryTimeout)
		defer cancel()
	}

	lookback := int64(f.cfg.Lookback / time.Second)

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			args := lookbackArgs(q.sql, lookback, f.cfg.Limit)
			rows, err := f.query(gctx, q.sql, args...)
			if err != nil {
				return fmt.Errorf("loading %s %s: %w", source, q.name, err)
			}
			*q.dst = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.mu.Lock()
		snap := f.snapshots[source]
		snap.retryAt = f.now().Add(f.cfg.TTL)
		f.snapshots[source] = snap
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	f.snapshots[source] = facetSnapshot{values: values, loadedAt: f.now()}
	f.mu.Unlock()

	f.log.WithFields(logrus.Fields{
		"source":   source,
		"services": len(values.Services),
	}).Debug("Loaded facets")

	return nil
}

// lookbackArgs builds the positional arguments for a facet query: one
// lookback per INTERVAL placeholder followed by the limit when the query
// has one.
func lookbackArgs(query string, lookback int64, limit int) []any {
	var args []any
	for i := 0; i < strings.Count(query, "INTERVAL ?"); i++ {
		args = append(args, lookback)
	}
	if strings.Contains(query, "LIMIT ?") {
		args = append(args, limit)
	}
	return args
}
