package database

import (
	"context"
	"database/sql"
	"fmt"

	"cms-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// NewSQLiteDatabase opens the SQLite metadata store at path. path can be a
// file path or ":memory:". The schema is not migrated.
func NewSQLiteDatabase(path string) (*SQLDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLDatabase{db: db, dialect: migrations.SQLite, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: ":memory:" databases are per connection, and SQLite
	// serialises writers anyway.
	db.SetMaxOpenConns(1)

	// SQLite leaves foreign keys off unless asked.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// BackupTo writes a complete copy of a SQLite store to destPath using
// VACUUM INTO. Other dialects are backed up with their own tooling.
func (s *SQLDatabase) BackupTo(ctx context.Context, destPath string) error {
	if s.dialect != migrations.SQLite {
		return fmt.Errorf("snapshots are only supported for sqlite, not %s", s.dialect)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}
