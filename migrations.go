package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Index query_tags",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_tags_query ON query_tags(query_id);
				CREATE INDEX IF NOT EXISTS idx_tags_key ON query_tags(tag_key);
				CREATE INDEX IF NOT EXISTS idx_tags_key_value ON query_tags(tag_key, tag_value);
			`,
		},
		{
			Version:     2,
			Description: "Index saved_queries by draft hash",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_saved_queries_hash ON saved_queries(draft_hash);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(db *sql.DB, log logrus.FieldLogger) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description VARCHAR NOT NULL,
			applied_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	log.WithField("version", currentVersion).Debug("Current schema version")

	appliedCount := 0
	for _, migration := range GetMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		mlog := log.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		})
		mlog.Info("Applying migration")

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		_, err = tx.Exec(migration.SQL)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			migration.Version, migration.Description, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		appliedCount++
	}

	if appliedCount > 0 {
		log.WithField("count", appliedCount).Info("Applied migrations")
	} else {
		log.Debug("No pending migrations")
	}

	return nil
}
