package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vishaltelangre/nerdcalci/dbopen"
)

// Line is one ordered entry of a document. SortOrder is dense from 0.
type Line struct {
	ID         int64
	DocumentID int64
	SortOrder  int
	Expression string
	Result     string
}

// Lines returns a document's lines ordered by position.
func (s *Store) Lines(ctx context.Context, docID int64) ([]*Line, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, document_id, sort_order, expression, result
		FROM lines WHERE document_id = ? ORDER BY sort_order`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*Line
	for rows.Next() {
		ln, err := scanLineRows(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}
	return lines, rows.Err()
}

// GetLine retrieves a line by ID, or nil when it does not exist.
func (s *Store) GetLine(ctx context.Context, id int64) (*Line, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, document_id, sort_order, expression, result
		FROM lines WHERE id = ?`, id)
	return scanLine(row)
}

// InsertLineAt inserts a line at the given position, shifting later lines
// down by one. The position is clamped to the current line count.
func (s *Store) InsertLineAt(ctx context.Context, docID int64, pos int, expression string) (*Line, error) {
	var ln *Line
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM lines WHERE document_id = ?`, docID).Scan(&count); err != nil {
			return err
		}
		if pos < 0 {
			pos = 0
		}
		if pos > count {
			pos = count
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE lines SET sort_order = sort_order + 1
			WHERE document_id = ? AND sort_order >= ?`, docID, pos); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lines (document_id, sort_order, expression, result)
			VALUES (?, ?, ?, '')`, docID, pos, expression)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ln = &Line{ID: id, DocumentID: docID, SortOrder: pos, Expression: expression}
		return nil
	})
	return ln, err
}

// RemoveLine deletes a line and closes the gap so positions stay dense.
func (s *Store) RemoveLine(ctx context.Context, id int64) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var docID int64
		var pos int
		err := tx.QueryRowContext(ctx,
			`SELECT document_id, sort_order FROM lines WHERE id = ?`, id).
			Scan(&docID, &pos)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lines WHERE id = ?`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE lines SET sort_order = sort_order - 1
			WHERE document_id = ? AND sort_order > ?`, docID, pos)
		return err
	})
}

// UpdateLineExpression replaces a line's expression text.
func (s *Store) UpdateLineExpression(ctx context.Context, id int64, expression string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE lines SET expression=? WHERE id=?`, expression, id)
	return err
}

// UpdateResults writes new results for the given line IDs in one transaction.
// Both slices must be the same length and aligned by index.
func (s *Store) UpdateResults(ctx context.Context, ids []int64, results []string) error {
	if len(ids) != len(results) {
		return fmt.Errorf("update results: %d ids but %d results", len(ids), len(results))
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE lines SET result=? WHERE id=?`, results[i], id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceLines swaps a document's entire line set for the given
// expression/result pairs, numbering them from 0 in order.
func (s *Store) ReplaceLines(ctx context.Context, docID int64, expressions, results []string) error {
	if len(expressions) != len(results) {
		return fmt.Errorf("replace lines: %d expressions but %d results", len(expressions), len(results))
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM lines WHERE document_id = ?`, docID); err != nil {
			return err
		}
		for i, expr := range expressions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lines (document_id, sort_order, expression, result)
				VALUES (?, ?, ?, ?)`, docID, i, expr, results[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RestoreLines reconciles a document's lines against a snapshot of
// expressions, by position: existing rows at a position keep their ID and
// get the snapshot's expression, extra rows are dropped, missing rows are
// appended. Results are cleared so the caller re-evaluates afterwards.
func (s *Store) RestoreLines(ctx context.Context, docID int64, expressions []string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM lines WHERE document_id = ? ORDER BY sort_order`, docID)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i, expr := range expressions {
			if i < len(ids) {
				if _, err := tx.ExecContext(ctx,
					`UPDATE lines SET expression=?, result='', sort_order=? WHERE id=?`,
					expr, i, ids[i]); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lines (document_id, sort_order, expression, result)
				VALUES (?, ?, ?, '')`, docID, i, expr); err != nil {
				return err
			}
		}
		for _, id := range ids[min(len(expressions), len(ids)):] {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM lines WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearLines removes all of a document's lines.
func (s *Store) ClearLines(ctx context.Context, docID int64) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM lines WHERE document_id = ?`, docID)
	return err
}

func scanLine(row *sql.Row) (*Line, error) {
	var ln Line
	err := row.Scan(&ln.ID, &ln.DocumentID, &ln.SortOrder, &ln.Expression, &ln.Result)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan line: %w", err)
	}
	return &ln, nil
}

func scanLineRows(rows *sql.Rows) (*Line, error) {
	var ln Line
	err := rows.Scan(&ln.ID, &ln.DocumentID, &ln.SortOrder, &ln.Expression, &ln.Result)
	if err != nil {
		return nil, fmt.Errorf("scan line: %w", err)
	}
	return &ln, nil
}
