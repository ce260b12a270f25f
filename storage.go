package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/orian/signalquery/models"
	"github.com/sirupsen/logrus"
)

type DuckDBStorage struct {
	db  *sql.DB
	log logrus.FieldLogger
}

func NewDuckDBStorage(dbPath string, log logrus.FieldLogger) (*DuckDBStorage, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	storage := &DuckDBStorage{db: db, log: log.WithField("component", "storage")}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := RunMigrations(db, storage.log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *DuckDBStorage) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS saved_queries (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			mode VARCHAR NOT NULL,
			draft TEXT NOT NULL,
			spec TEXT,
			rejection TEXT,
			draft_hash VARCHAR NOT NULL,
			parent_id VARCHAR,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS query_tags (
			id VARCHAR PRIMARY KEY,
			query_id VARCHAR NOT NULL,
			tag_key VARCHAR NOT NULL,
			tag_value VARCHAR,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (query_id) REFERENCES saved_queries(id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

const savedQueryColumns = `id, name, mode, draft, COALESCE(spec, ''), COALESCE(rejection, ''), draft_hash, COALESCE(parent_id, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSavedQuery decodes one saved_queries row selected with
// savedQueryColumns.
func (s *DuckDBStorage) scanSavedQuery(row rowScanner) (*models.SavedQuery, error) {
	var (
		q         models.SavedQuery
		draftJSON string
		specJSON  string
	)
	if err := row.Scan(&q.ID, &q.Name, &q.Mode, &draftJSON, &specJSON, &q.Rejection, &q.DraftHash, &q.ParentID, &q.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(draftJSON), &q.Draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft for query %s: %w", q.ID, err)
	}

	if specJSON != "" {
		spec, err := models.DecodeQuerySpec([]byte(specJSON))
		if err != nil {
			// The record stays readable; it is simply not executable.
			s.log.WithError(err).WithField("query_id", q.ID).Warn("Failed to decode stored spec")
		} else {
			q.Spec = spec
		}
	}

	return &q, nil
}

func (s *DuckDBStorage) SaveQuery(query *models.SavedQuery) error {
	draftJSON, err := json.Marshal(query.Draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	var specJSON any
	if query.Spec != nil {
		raw, err := json.Marshal(query.Spec)
		if err != nil {
			return fmt.Errorf("failed to marshal spec: %w", err)
		}
		specJSON = string(raw)
	}

	_, err = s.db.Exec(
		`INSERT INTO saved_queries (id, name, mode, draft, spec, rejection, draft_hash, parent_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		query.ID, query.Name, string(query.Mode), string(draftJSON), specJSON,
		nullString(query.Rejection), query.DraftHash, nullString(query.ParentID), query.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}

	return nil
}

func (s *DuckDBStorage) GetQuery(id string) (*models.SavedQuery, bool) {
	row := s.db.QueryRow(`SELECT `+savedQueryColumns+` FROM saved_queries WHERE id = ?`, id)

	q, err := s.scanSavedQuery(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.WithError(err).WithField("query_id", id).Warn("Failed to load query")
		}
		return nil, false
	}

	s.loadTags(q)
	return q, true
}

func (s *DuckDBStorage) FindQueryByHash(draftHash string) (*models.SavedQuery, bool) {
	row := s.db.QueryRow(`
		SELECT `+savedQueryColumns+`
		FROM saved_queries
		WHERE draft_hash = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, draftHash)

	q, err := s.scanSavedQuery(row)
	if err != nil {
		return nil, false
	}

	s.loadTags(q)
	return q, true
}

// loadTags attaches the tags of a single query. A failure leaves it with no
// tags.
func (s *DuckDBStorage) loadTags(q *models.SavedQuery) {
	q.Tags = []*models.QueryTag{}
	if err := s.attachTags([]*models.SavedQuery{q}); err != nil {
		s.log.WithError(err).WithField("query_id", q.ID).Warn("Failed to load query tags")
	}
}

func (s *DuckDBStorage) ListQueries() ([]*models.SavedQuery, error) {
	rows, err := s.db.Query(`SELECT ` + savedQueryColumns + ` FROM saved_queries ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	queries, err := s.collectQueries(rows)
	if err != nil {
		return nil, err
	}

	return queries, s.attachTags(queries)
}

// collectQueries scans and closes rows.
func (s *DuckDBStorage) collectQueries(rows *sql.Rows) ([]*models.SavedQuery, error) {
	defer rows.Close()

	queries := []*models.SavedQuery{}
	for rows.Next() {
		q, err := s.scanSavedQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		q.Tags = []*models.QueryTag{}
		queries = append(queries, q)
	}

	return queries, rows.Err()
}

// attachTags loads the tags of all queries in one statement.
func (s *DuckDBStorage) attachTags(queries []*models.SavedQuery) error {
	if len(queries) == 0 {
		return nil
	}

	ids := make([]string, len(queries))
	for i, q := range queries {
		ids[i] = q.ID
	}

	tags, err := s.getTagsForQueries(ids)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}

	tagsByQuery := make(map[string][]*models.QueryTag)
	for _, tag := range tags {
		tagsByQuery[tag.QueryID] = append(tagsByQuery[tag.QueryID], tag)
	}

	for _, q := range queries {
		if tags, ok := tagsByQuery[q.ID]; ok {
			q.Tags = tags
		}
	}

	return nil
}

func (s *DuckDBStorage) getTagsForQueries(queryIDs []string) ([]*models.QueryTag, error) {
	placeholders := make([]string, len(queryIDs))
	args := make([]any, len(queryIDs))
	for i, id := range queryIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, query_id, tag_key, COALESCE(tag_value, ''), created_at
		FROM query_tags
		WHERE query_id IN (%s)
		ORDER BY created_at ASC
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*models.QueryTag
	for rows.Next() {
		var tag models.QueryTag
		if err := rows.Scan(&tag.ID, &tag.QueryID, &tag.TagKey, &tag.TagValue, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, &tag)
	}

	return tags, rows.Err()
}

func (s *DuckDBStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func generateID() string {
	return uuid.New().String()
}
