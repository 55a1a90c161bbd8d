package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vishaltelangre/nerdcalci/dbopen"
)

// Document is a named calculation file.
type Document struct {
	ID           int64
	Name         string
	LastModified int64
	Pinned       bool
}

// InsertDocument adds a new document and returns its assigned ID.
func (s *Store) InsertDocument(ctx context.Context, doc *Document) (int64, error) {
	if doc.LastModified == 0 {
		doc.LastModified = time.Now().UnixMilli()
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO documents (name, last_modified, pinned) VALUES (?, ?, ?)`,
		doc.Name, doc.LastModified, doc.Pinned)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	doc.ID = id
	return id, nil
}

// GetDocument retrieves a document by ID, or nil when it does not exist.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, last_modified, pinned FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentByName returns the first document with the given name, or nil.
func (s *Store) GetDocumentByName(ctx context.Context, name string) (*Document, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, last_modified, pinned FROM documents
		WHERE name = ? ORDER BY id LIMIT 1`, name)
	return scanDocument(row)
}

// ListDocuments returns all documents, pinned first, most recently
// modified first within each group.
func (s *Store) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, last_modified, pinned FROM documents
		ORDER BY pinned DESC, last_modified DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// RenameDocument updates a document's name and bumps last_modified.
func (s *Store) RenameDocument(ctx context.Context, id int64, name string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE documents SET name=?, last_modified=? WHERE id=?`,
		name, time.Now().UnixMilli(), id)
	return err
}

// SetPinned updates a document's pinned flag without touching last_modified,
// so pinning does not reshuffle the recency order inside each group.
func (s *Store) SetPinned(ctx context.Context, id int64, pinned bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE documents SET pinned=? WHERE id=?`, pinned, id)
	return err
}

// CountPinned returns the number of currently pinned documents.
func (s *Store) CountPinned(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE pinned = 1`).Scan(&count)
	return count, err
}

// TouchDocument bumps a document's last_modified to now.
func (s *Store) TouchDocument(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE documents SET last_modified=? WHERE id=?`,
		time.Now().UnixMilli(), id)
	return err
}

// DeleteDocument removes a document and its lines in one transaction.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM lines WHERE document_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		return err
	})
}

func scanDocument(row *sql.Row) (*Document, error) {
	var doc Document
	var pinned int
	err := row.Scan(&doc.ID, &doc.Name, &doc.LastModified, &pinned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Pinned = pinned != 0
	return &doc, nil
}

func scanDocumentRows(rows *sql.Rows) (*Document, error) {
	var doc Document
	var pinned int
	err := rows.Scan(&doc.ID, &doc.Name, &doc.LastModified, &pinned)
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Pinned = pinned != 0
	return &doc, nil
}
