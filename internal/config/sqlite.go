package config

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// DefaultDocumentKey is the row key used for the feeder document.
const DefaultDocumentKey = "feeder"

const (
	schemaDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    key TEXT PRIMARY KEY,
    body BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`

	upsertDocumentSQL = `
		INSERT INTO documents (key, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body=excluded.body,
			updated_at=excluded.updated_at
	`

	selectDocumentSQL = `SELECT body FROM documents WHERE key=?`
)

// SQLiteStorage keeps the document as one row of a key/document table.
// Useful on boards where the config lives on an SD card shared with other data.
type SQLiteStorage struct {
	db  *sql.DB
	key string
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// synchronous=FULL: a successful write must survive an immediate power cut.
	if _, err := db.Exec("PRAGMA synchronous = FULL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA synchronous=FULL: %w", err)
	}
	if _, err := db.Exec(schemaDocuments); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return db, nil
}

// NewSQLiteStorage stores the document under key in db.
func NewSQLiteStorage(db *sql.DB, key string) *SQLiteStorage {
	return &SQLiteStorage{db: db, key: key}
}

// Read returns the document body.
func (s *SQLiteStorage) Read() ([]byte, error) {
	var body []byte
	if err := s.db.QueryRow(selectDocumentSQL, s.key).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("select document %q: %w", s.key, err)
	}
	return body, nil
}

// Write upserts the document body.
func (s *SQLiteStorage) Write(data []byte) error {
	if _, err := s.db.Exec(upsertDocumentSQL, s.key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert document %q: %w", s.key, err)
	}
	return nil
}
