// Package blobstore is the concrete, SQLite-backed form of the volume
// session's opaque byte-blob collaborator: one row per (volume, key) pair,
// value stored as a BLOB column. Grounded on the teacher's sqlx repository
// shape (infrastructure/api/src/repository/files/file_repository.go),
// adapted from Postgres to SQLite, and on the original implementation's
// sqlitedict-backed storage for the per-volume namespacing.
package blobstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	volume TEXT NOT NULL,
	key    TEXT NOT NULL,
	value  BLOB NOT NULL,
	PRIMARY KEY (volume, key)
);`

// Store wraps a *sqlx.DB over mattn/go-sqlite3, namespacing every call by
// volume name.
type Store struct {
	db     *sqlx.DB
	logger *logrus.Logger
	volume string
}

// Open opens (creating if necessary) the SQLite database at path and
// returns a Store scoped to volume.
func Open(path, volume string, logger *logrus.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blobstore: migrate schema: %w", err)
	}
	return &Store{db: db, logger: logger, volume: volume}, nil
}

// Get returns the value stored at key, or (nil, false) if absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM blobs WHERE volume = ? AND key = ?`, s.volume, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		s.logger.WithError(err).WithField("key", key).Error("blobstore: get failed")
		return nil, false, fmt.Errorf("blobstore: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value at key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (volume, key, value) VALUES (?, ?, ?)
		ON CONFLICT (volume, key) DO UPDATE SET value = excluded.value
	`, s.volume, key, value)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("blobstore: set failed")
		return fmt.Errorf("blobstore: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key, if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE volume = ? AND key = ?`, s.volume, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("blobstore: delete failed")
		return fmt.Errorf("blobstore: delete %q: %w", key, err)
	}
	return nil
}

// Contains reports whether key is present.
func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM blobs WHERE volume = ? AND key = ?`, s.volume, key)
	if err != nil {
		return false, fmt.Errorf("blobstore: contains %q: %w", key, err)
	}
	return count > 0, nil
}

// Commit is a no-op synchronization point matching spec.md's blob-store
// contract; individual writes are already durable once Set returns, since
// each runs its own implicit transaction.
func (s *Store) Commit(ctx context.Context) error {
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
