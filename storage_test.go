package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/orian/signalquery/models"
	"github.com/orian/signalquery/queryspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *DuckDBStorage {
	t.Helper()

	storage, err := NewDuckDBStorage(filepath.Join(t.TempDir(), "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func saveTestQuery(t *testing.T, storage *DuckDBStorage, name string, createdAt time.Time) *models.SavedQuery {
	t.Helper()

	draft := models.DefaultDraft(name, models.SourceTraces)
	spec, err := queryspec.Build(draft, models.ModeTimeseries)
	require.NoError(t, err)

	q := &models.SavedQuery{
		ID:        generateID(),
		Name:      name,
		Mode:      models.ModeTimeseries,
		Draft:     draft,
		Spec:      spec,
		DraftHash: hashDraft(&SaveRequest{Draft: draft}, models.ModeTimeseries),
		CreatedAt: createdAt,
	}
	require.NoError(t, storage.SaveQuery(q))
	return q
}

func TestStorageSaveAndGet(t *testing.T) {
	storage := newTestStorage(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	saved := saveTestQuery(t, storage, "A", base)

	got, ok := storage.GetQuery(saved.ID)
	require.True(t, ok)
	assert.Equal(t, saved.Name, got.Name)
	assert.Equal(t, saved.Mode, got.Mode)
	assert.Equal(t, saved.Draft, got.Draft)
	assert.Equal(t, saved.Spec, got.Spec)
	assert.Equal(t, saved.DraftHash, got.DraftHash)
	assert.Empty(t, got.Rejection)
	assert.Empty(t, got.ParentID)
	assert.NotNil(t, got.Tags)
	assert.Empty(t, got.Tags)

	_, err := storage.AddTag(saved.ID, "team=payments")
	require.NoError(t, err)
	_, err = storage.ToggleStarred(saved.ID)
	require.NoError(t, err)

	got, ok = storage.GetQuery(saved.ID)
	require.True(t, ok)
	var tags []string
	for _, tag := range got.Tags {
		tags = append(tags, tag.FormatTag())
	}
	assert.ElementsMatch(t, []string{"team=payments", models.StarredTag}, tags)

	byHash, ok := storage.FindQueryByHash(saved.DraftHash)
	require.True(t, ok)
	assert.Len(t, byHash.Tags, 2)

	_, ok = storage.GetQuery("missing")
	assert.False(t, ok)
}

func TestStorageRejectedQuery(t *testing.T) {
	storage := newTestStorage(t)

	q := &models.SavedQuery{
		ID:        generateID(),
		Name:      "bad",
		Mode:      models.ModeBreakdown,
		Draft:     models.QueryDraft{Name: "bad", DataSource: models.SourceLogs, Metric: "avg"},
		Rejection: "logs metric \"avg\" is not supported",
		DraftHash: "hash",
		ParentID:  "parent-id",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, storage.SaveQuery(q))

	got, ok := storage.GetQuery(q.ID)
	require.True(t, ok)
	assert.Nil(t, got.Spec)
	assert.Equal(t, q.Rejection, got.Rejection)
	assert.Equal(t, "parent-id", got.ParentID)
}

func TestStorageFindQueryByHash(t *testing.T) {
	storage := newTestStorage(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	older := saveTestQuery(t, storage, "A", base)
	newer := saveTestQuery(t, storage, "A", base.Add(time.Minute))
	require.Equal(t, older.DraftHash, newer.DraftHash)

	got, ok := storage.FindQueryByHash(older.DraftHash)
	require.True(t, ok)
	assert.Equal(t, newer.ID, got.ID)

	_, ok = storage.FindQueryByHash("unknown")
	assert.False(t, ok)
}

func TestStorageListQueries(t *testing.T) {
	storage := newTestStorage(t)

	empty, err := storage.ListQueries()
	require.NoError(t, err)
	assert.Empty(t, empty)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := saveTestQuery(t, storage, "A", base)
	b := saveTestQuery(t, storage, "B", base.Add(time.Hour))

	_, err = storage.AddTag(a.ID, "team=payments")
	require.NoError(t, err)

	queries, err := storage.ListQueries()
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, b.ID, queries[0].ID, "newest first")
	assert.Equal(t, a.ID, queries[1].ID)
	assert.Empty(t, queries[0].Tags)
	require.Len(t, queries[1].Tags, 1)
	assert.Equal(t, "team=payments", queries[1].Tags[0].FormatTag())
}

func TestStorageTags(t *testing.T) {
	storage := newTestStorage(t)
	q := saveTestQuery(t, storage, "A", time.Now().UTC())
	other := saveTestQuery(t, storage, "B", time.Now().UTC())

	tests := []struct {
		name    string
		queryID string
		tag     string
		wantErr error
		invalid bool
	}{
		{name: "simple tag", queryID: q.ID, tag: "oncall"},
		{name: "key value tag", queryID: q.ID, tag: "team=payments"},
		{name: "same key other value", queryID: q.ID, tag: "team=core"},
		{name: "duplicate", queryID: q.ID, tag: "oncall", wantErr: ErrTagExists},
		{name: "unknown query", queryID: "missing", tag: "oncall", wantErr: ErrNotFound},
		{name: "reserved prefix", queryID: q.ID, tag: "system:starred", invalid: true},
		{name: "empty", queryID: q.ID, tag: "", invalid: true},
		{name: "other query", queryID: other.ID, tag: "team=payments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := storage.AddTag(tt.queryID, tt.tag)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.invalid:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.queryID, tag.QueryID)
				assert.Equal(t, tt.tag, tag.FormatTag())
			}
		})
	}

	tags, err := storage.GetQueryTags(q.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 3)

	none, err := storage.GetQueryTags("missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	byKey, err := storage.GetQueriesByTag("team")
	require.NoError(t, err)
	assert.Len(t, byKey, 2)

	byValue, err := storage.GetQueriesByTag("team=core")
	require.NoError(t, err)
	require.Len(t, byValue, 1)
	assert.Equal(t, q.ID, byValue[0].ID)
	assert.Len(t, byValue[0].Tags, 3)

	require.NoError(t, storage.RemoveTag(tags[0].ID))
	assert.ErrorIs(t, storage.RemoveTag(tags[0].ID), ErrNotFound)

	tags, err = storage.GetQueryTags(q.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestStorageToggleStarred(t *testing.T) {
	storage := newTestStorage(t)
	q := saveTestQuery(t, storage, "A", time.Now().UTC())

	starred, err := storage.ToggleStarred(q.ID)
	require.NoError(t, err)
	assert.True(t, starred)

	byTag, err := storage.GetQueriesByTag(models.StarredTag)
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.True(t, byTag[0].Tags[0].IsSystemTag())

	starred, err = storage.ToggleStarred(q.ID)
	require.NoError(t, err)
	assert.False(t, starred)

	byTag, err = storage.GetQueriesByTag(models.StarredTag)
	require.NoError(t, err)
	assert.Empty(t, byTag)

	_, err = storage.ToggleStarred("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := NewDuckDBStorage(path, testLogger())
	require.NoError(t, err)

	var version int
	require.NoError(t, first.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, len(GetMigrations()), version)
	require.NoError(t, first.Close())

	second, err := NewDuckDBStorage(path, testLogger())
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}
