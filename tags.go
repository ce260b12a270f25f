package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/orian/signalquery/models"
)

// ErrTagExists is returned when a query already carries the tag.
var ErrTagExists = errors.New("tag already exists on this query")

// ErrNotFound is returned for unknown queries and tags.
var ErrNotFound = errors.New("not found")

// Tag management methods for DuckDBStorage

// AddTag adds a user tag to a saved query.
func (s *DuckDBStorage) AddTag(queryID, tag string) (*models.QueryTag, error) {
	if err := models.ValidateTag(tag); err != nil {
		return nil, err
	}
	return s.insertTag(queryID, tag)
}

// insertTag stores a tag without checking for reserved keys.
func (s *DuckDBStorage) insertTag(queryID, tag string) (*models.QueryTag, error) {
	key, value := models.ParseTag(tag)

	var exists int
	err := s.db.QueryRow("SELECT COUNT(*) FROM saved_queries WHERE id = ?", queryID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check query: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("query %s: %w", queryID, ErrNotFound)
	}

	var count int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM query_tags
		WHERE query_id = ? AND tag_key = ? AND COALESCE(tag_value, '') = ?
	`, queryID, key, value).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing tag: %w", err)
	}

	if count > 0 {
		return nil, ErrTagExists
	}

	tagObj := &models.QueryTag{
		ID:        generateID(),
		QueryID:   queryID,
		TagKey:    key,
		TagValue:  value,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.Exec(`
		INSERT INTO query_tags (id, query_id, tag_key, tag_value, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, tagObj.ID, tagObj.QueryID, tagObj.TagKey, nullString(tagObj.TagValue), tagObj.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert tag: %w", err)
	}

	return tagObj, nil
}

// RemoveTag removes a tag by ID.
func (s *DuckDBStorage) RemoveTag(tagID string) error {
	result, err := s.db.Exec("DELETE FROM query_tags WHERE id = ?", tagID)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}

	return nil
}

// GetQueryTags gets all tags for a saved query.
func (s *DuckDBStorage) GetQueryTags(queryID string) ([]*models.QueryTag, error) {
	tags, err := s.getTagsForQueries([]string{queryID})
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	if tags == nil {
		tags = []*models.QueryTag{}
	}
	return tags, nil
}

// GetQueriesByTag finds saved queries carrying a tag. A bare key matches
// any value.
func (s *DuckDBStorage) GetQueriesByTag(tag string) ([]*models.SavedQuery, error) {
	key, value := models.ParseTag(tag)

	query := `
		SELECT ` + savedQueryColumns + `
		FROM saved_queries
		WHERE id IN (
			SELECT query_id FROM query_tags
			WHERE tag_key = ? AND (? = '' OR COALESCE(tag_value, '') = ?)
		)
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(query, key, value, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved queries by tag: %w", err)
	}

	queries, err := s.collectQueries(rows)
	if err != nil {
		return nil, err
	}

	return queries, s.attachTags(queries)
}

// ToggleStarred toggles the system:starred tag on a saved query.
func (s *DuckDBStorage) ToggleStarred(queryID string) (bool, error) {
	var tagID string
	err := s.db.QueryRow(`
		SELECT id FROM query_tags
		WHERE query_id = ? AND tag_key = ?
	`, queryID, models.StarredTag).Scan(&tagID)

	if err == sql.ErrNoRows {
		if _, err := s.insertTag(queryID, models.StarredTag); err != nil {
			return false, fmt.Errorf("failed to star query: %w", err)
		}
		return true, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check star status: %w", err)
	}

	if err := s.RemoveTag(tagID); err != nil {
		return false, fmt.Errorf("failed to unstar query: %w", err)
	}
	return false, nil
}
