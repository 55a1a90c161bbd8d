// Package store provides the SQLite persistence layer for the notebook:
// documents, their ordered lines, and a small key-value meta table.
package store

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/vishaltelangre/nerdcalci/dbopen"
)

// Store is the notebook database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the notebook database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
