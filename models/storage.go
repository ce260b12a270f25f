package models

// Storage defines the persistence layer for saved queries.
//
// It provides methods for managing saved query records and their tags.
// The primary implementation is DuckDBStorage which uses DuckDB for
// local persistent storage.
//
// The interface is organized into two categories:
//   - Query management: SaveQuery, GetQuery, FindQueryByHash, ListQueries
//   - Tag management: AddTag, RemoveTag, GetQueryTags, GetQueriesByTag, ToggleStarred
//
// Thread Safety: Implementations should be safe for concurrent use.
type Storage interface {
	// SaveQuery persists a new saved query record.
	//
	// The record's ID must be set before calling this method. Records are
	// immutable once saved.
	SaveQuery(query *SavedQuery) error

	// GetQuery retrieves a saved query by its ID.
	//
	// The returned record includes its compiled spec but not Tags.
	// Use GetQueryTags to retrieve tags separately, or ListQueries
	// which includes tags.
	//
	// Returns the record and true if found, nil and false otherwise.
	GetQuery(id string) (*SavedQuery, bool)

	// FindQueryByHash returns the newest record whose draft hash matches.
	//
	// Returns the record and true if found, nil and false otherwise.
	FindQueryByHash(draftHash string) (*SavedQuery, bool)

	// ListQueries returns all saved queries ordered by creation time
	// (newest first), including their tags.
	ListQueries() ([]*SavedQuery, error)

	// Close releases any resources held by the storage.
	//
	// After Close is called, the storage should not be used.
	Close() error

	// AddTag adds a tag to a saved query.
	//
	// Tag format can be:
	//   - Simple tag: "tagname" (e.g., "oncall", "slo")
	//   - Key-value tag: "key=value" (e.g., "team=payments")
	//
	// System tags (prefixed with "system:") are reserved for internal use.
	//
	// Returns the created tag or an error if:
	//   - Tag format is invalid
	//   - Query doesn't exist
	//   - Tag already exists on this query
	AddTag(queryID, tag string) (*QueryTag, error)

	// RemoveTag removes a tag by its ID.
	//
	// Returns an error if the tag doesn't exist.
	RemoveTag(tagID string) error

	// GetQueryTags returns all tags for a specific saved query.
	//
	// Returns an empty slice if the query has no tags.
	GetQueryTags(queryID string) ([]*QueryTag, error)

	// GetQueriesByTag returns saved queries matching a tag filter.
	//
	// Tag format:
	//   - "key": Matches any query with this tag key (any value)
	//   - "key=value": Matches queries with exact key-value pair
	//
	// Results are ordered by creation time (newest first).
	GetQueriesByTag(tag string) ([]*SavedQuery, error)

	// ToggleStarred toggles the "system:starred" tag on a saved query.
	//
	// If the query is starred, it becomes unstarred and vice versa.
	// Returns the new starred state (true if now starred).
	ToggleStarred(queryID string) (bool, error)
}
