// Package notebook is the calculation notebook engine.
//
// It owns the documents and their lines, runs every edit through the
// expression evaluator, and keeps bounded per-document undo/redo history.
// The flow for each edit:
//
//	mutate lines → re-evaluate whole document → persist results → bump recency
//
// Key behaviours:
//   - Cross-line variables: each line sees bindings from the lines above it
//   - Undo/redo: in-memory snapshot stacks, bounded per document
//   - Pinning: pinned documents list first, with a hard cap
//   - Export/import: full-notebook snapshots for the backup layer
//
// Usage:
//
//	nb, err := notebook.New(cfg, logger)
//	defer nb.Close()
//	nb.RegisterMCP(mcpServer)
package notebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/vishaltelangre/nerdcalci/calc"
	"github.com/vishaltelangre/nerdcalci/notebook/internal/store"
)

var (
	// ErrNotFound reports a document or line that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNameInvalid reports an empty or over-long document name.
	ErrNameInvalid = errors.New("invalid document name")
	// ErrPinnedLimit reports an attempt to pin past the cap.
	ErrPinnedLimit = errors.New("pinned document limit reached")
	// ErrNothingToUndo and ErrNothingToRedo report empty history stacks.
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

const lastBackupKey = "last_backup_at"

// Document is a named calculation file as seen by API callers.
type Document struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	LastModified int64  `json:"last_modified"`
	Pinned       bool   `json:"pinned"`
}

// Line is one entry of a document. Position is zero-based.
type Line struct {
	ID         int64  `json:"id"`
	Position   int    `json:"position"`
	Expression string `json:"expression"`
	Result     string `json:"result"`
}

// Notebook is the main engine. All mutating operations on one document are
// serialised by a per-document lock so the mutate/re-evaluate/persist unit
// never interleaves.
type Notebook struct {
	store   *store.Store
	history *history
	logger  *slog.Logger
	config  *Config

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New opens the SQLite database and initialises the engine.
func New(cfg *Config, logger *slog.Logger) (*Notebook, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open notebook store: %w", err)
	}
	return &Notebook{
		store:   s,
		history: newHistory(cfg.HistoryDepth),
		logger:  logger,
		config:  cfg,
		locks:   make(map[int64]*sync.Mutex),
	}, nil
}

// Close releases the database.
func (n *Notebook) Close() error {
	return n.store.Close()
}

// DB exposes the underlying database for change watchers.
func (n *Notebook) DB() *store.Store { return n.store }

func (n *Notebook) lockFor(docID int64) *sync.Mutex {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.locks[docID]
	if !ok {
		l = &sync.Mutex{}
		n.locks[docID] = l
	}
	return l
}

func (n *Notebook) validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > n.config.MaxNameLen {
		return fmt.Errorf("%w: %q", ErrNameInvalid, name)
	}
	return nil
}

// CreateDocument adds a new, empty document.
func (n *Notebook) CreateDocument(ctx context.Context, name string) (*Document, error) {
	name = strings.TrimSpace(name)
	if err := n.validateName(name); err != nil {
		return nil, err
	}
	doc := &store.Document{Name: name}
	if _, err := n.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	n.logger.Info("document created", "id", doc.ID, "name", name)
	return toDocument(doc), nil
}

// GetDocument returns a document by ID.
func (n *Notebook) GetDocument(ctx context.Context, id int64) (*Document, error) {
	doc, err := n.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return toDocument(doc), nil
}

// ListDocuments returns all documents, pinned first, most recent first.
func (n *Notebook) ListDocuments(ctx context.Context) ([]*Document, error) {
	docs, err := n.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocument(d))
	}
	return out, nil
}

// RenameDocument changes a document's name.
func (n *Notebook) RenameDocument(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if err := n.validateName(name); err != nil {
		return err
	}
	if _, err := n.GetDocument(ctx, id); err != nil {
		return err
	}
	return n.store.RenameDocument(ctx, id, name)
}

// DeleteDocument removes a document, its lines, and its edit history.
func (n *Notebook) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := n.GetDocument(ctx, id); err != nil {
		return err
	}
	l := n.lockFor(id)
	l.Lock()
	defer l.Unlock()
	if err := n.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n.history.Forget(id)
	n.mu.Lock()
	delete(n.locks, id)
	n.mu.Unlock()
	n.logger.Info("document deleted", "id", id)
	return nil
}

// DuplicateDocument copies a document's lines into a new document.
// The copy starts with empty history.
func (n *Notebook) DuplicateDocument(ctx context.Context, id int64, name string) (*Document, error) {
	name = strings.TrimSpace(name)
	if err := n.validateName(name); err != nil {
		return nil, err
	}
	l := n.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := n.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	lines, err := n.store.Lines(ctx, id)
	if err != nil {
		return nil, err
	}

	doc := &store.Document{Name: name}
	if _, err := n.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("duplicate document: %w", err)
	}
	exprs := make([]string, len(lines))
	results := make([]string, len(lines))
	for i, ln := range lines {
		exprs[i] = ln.Expression
		results[i] = ln.Result
	}
	if err := n.store.ReplaceLines(ctx, doc.ID, exprs, results); err != nil {
		return nil, fmt.Errorf("duplicate lines: %w", err)
	}
	n.logger.Info("document duplicated", "from", id, "to", doc.ID)
	return toDocument(doc), nil
}

// TogglePin flips a document's pinned flag. Pinning past the cap fails
// with ErrPinnedLimit; unpinning always succeeds.
func (n *Notebook) TogglePin(ctx context.Context, id int64) (*Document, error) {
	doc, err := n.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if !doc.Pinned {
		count, err := n.store.CountPinned(ctx)
		if err != nil {
			return nil, err
		}
		if count >= n.config.MaxPinned {
			return nil, ErrPinnedLimit
		}
	}
	doc.Pinned = !doc.Pinned
	if err := n.store.SetPinned(ctx, id, doc.Pinned); err != nil {
		return nil, err
	}
	return toDocument(doc), nil
}

// Lines returns a document's lines in order.
func (n *Notebook) Lines(ctx context.Context, docID int64) ([]*Line, error) {
	if _, err := n.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	lines, err := n.store.Lines(ctx, docID)
	if err != nil {
		return nil, err
	}
	return toLines(lines), nil
}

// InsertLine adds a line at the given position (clamped to the ends) and
// re-evaluates the document.
func (n *Notebook) InsertLine(ctx context.Context, docID int64, pos int, expression string) ([]*Line, error) {
	if _, err := n.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	l := n.lockFor(docID)
	l.Lock()
	defer l.Unlock()

	if err := n.recordSnapshot(ctx, docID); err != nil {
		return nil, err
	}
	if _, err := n.store.InsertLineAt(ctx, docID, pos, expression); err != nil {
		return nil, fmt.Errorf("insert line: %w", err)
	}
	return n.reevaluate(ctx, docID)
}

// AppendLine adds a line after the last one.
func (n *Notebook) AppendLine(ctx context.Context, docID int64, expression string) ([]*Line, error) {
	return n.InsertLine(ctx, docID, int(^uint(0)>>1), expression)
}

// UpdateLine replaces a line's expression and re-evaluates the document.
func (n *Notebook) UpdateLine(ctx context.Context, lineID int64, expression string) ([]*Line, error) {
	ln, err := n.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if ln == nil {
		return nil, fmt.Errorf("line %d: %w", lineID, ErrNotFound)
	}
	l := n.lockFor(ln.DocumentID)
	l.Lock()
	defer l.Unlock()

	// Text edits within a line are not individually undoable; only
	// structural mutations snapshot history.
	if err := n.store.UpdateLineExpression(ctx, lineID, expression); err != nil {
		return nil, fmt.Errorf("update line: %w", err)
	}
	return n.reevaluate(ctx, ln.DocumentID)
}

// RemoveLine deletes a line and re-evaluates the document.
func (n *Notebook) RemoveLine(ctx context.Context, lineID int64) ([]*Line, error) {
	ln, err := n.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if ln == nil {
		return nil, fmt.Errorf("line %d: %w", lineID, ErrNotFound)
	}
	l := n.lockFor(ln.DocumentID)
	l.Lock()
	defer l.Unlock()

	if err := n.recordSnapshot(ctx, ln.DocumentID); err != nil {
		return nil, err
	}
	if err := n.store.RemoveLine(ctx, lineID); err != nil {
		return nil, fmt.Errorf("remove line: %w", err)
	}
	return n.reevaluate(ctx, ln.DocumentID)
}

// ClearLines removes every line of a document and drops its edit
// history; the pre-clear snapshots are no longer meaningful.
func (n *Notebook) ClearLines(ctx context.Context, docID int64) error {
	if _, err := n.GetDocument(ctx, docID); err != nil {
		return err
	}
	l := n.lockFor(docID)
	l.Lock()
	defer l.Unlock()

	if err := n.store.ClearLines(ctx, docID); err != nil {
		return fmt.Errorf("clear lines: %w", err)
	}
	n.history.Forget(docID)
	return n.store.TouchDocument(ctx, docID)
}

// Undo restores the previous expression snapshot and re-evaluates.
func (n *Notebook) Undo(ctx context.Context, docID int64) ([]*Line, error) {
	return n.travel(ctx, docID, n.history.Undo, ErrNothingToUndo)
}

// Redo restores the most recently undone snapshot and re-evaluates.
func (n *Notebook) Redo(ctx context.Context, docID int64) ([]*Line, error) {
	return n.travel(ctx, docID, n.history.Redo, ErrNothingToRedo)
}

// CanUndo reports whether the document has undo history.
func (n *Notebook) CanUndo(docID int64) bool { return n.history.CanUndo(docID) }

// CanRedo reports whether the document has redo history.
func (n *Notebook) CanRedo(docID int64) bool { return n.history.CanRedo(docID) }

func (n *Notebook) travel(ctx context.Context, docID int64, step func(int64, snapshot) (snapshot, bool), empty error) ([]*Line, error) {
	if _, err := n.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	l := n.lockFor(docID)
	l.Lock()
	defer l.Unlock()

	current, err := n.expressions(ctx, docID)
	if err != nil {
		return nil, err
	}
	target, ok := step(docID, current)
	if !ok {
		return nil, empty
	}
	if err := n.store.RestoreLines(ctx, docID, target); err != nil {
		return nil, fmt.Errorf("restore lines: %w", err)
	}
	return n.reevaluate(ctx, docID)
}

// recordSnapshot pushes the document's current expressions onto the undo
// stack. Call it with the document lock held, before mutating.
func (n *Notebook) recordSnapshot(ctx context.Context, docID int64) error {
	exprs, err := n.expressions(ctx, docID)
	if err != nil {
		return err
	}
	n.history.Record(docID, exprs)
	return nil
}

func (n *Notebook) expressions(ctx context.Context, docID int64) ([]string, error) {
	lines, err := n.store.Lines(ctx, docID)
	if err != nil {
		return nil, err
	}
	exprs := make([]string, len(lines))
	for i, ln := range lines {
		exprs[i] = ln.Expression
	}
	return exprs, nil
}

// reevaluate runs the whole document through the evaluator, persists the
// results, and bumps recency. Call it with the document lock held.
func (n *Notebook) reevaluate(ctx context.Context, docID int64) ([]*Line, error) {
	lines, err := n.store.Lines(ctx, docID)
	if err != nil {
		return nil, err
	}
	exprs := make([]string, len(lines))
	ids := make([]int64, len(lines))
	for i, ln := range lines {
		exprs[i] = ln.Expression
		ids[i] = ln.ID
	}
	results := calc.Evaluate(exprs)
	if err := n.store.UpdateResults(ctx, ids, results); err != nil {
		return nil, fmt.Errorf("persist results: %w", err)
	}
	if err := n.store.TouchDocument(ctx, docID); err != nil {
		return nil, err
	}
	out := make([]*Line, len(lines))
	for i, ln := range lines {
		out[i] = &Line{ID: ln.ID, Position: ln.SortOrder, Expression: ln.Expression, Result: results[i]}
	}
	return out, nil
}

// LastBackupAt returns the last successful backup time in Unix
// milliseconds, or 0 when no backup has run yet.
func (n *Notebook) LastBackupAt(ctx context.Context) (int64, error) {
	v, err := n.store.GetMeta(ctx, lastBackupKey)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// SetLastBackupAt records the last successful backup time.
func (n *Notebook) SetLastBackupAt(ctx context.Context, unixMilli int64) error {
	return n.store.SetMeta(ctx, lastBackupKey, strconv.FormatInt(unixMilli, 10))
}

func toDocument(d *store.Document) *Document {
	return &Document{ID: d.ID, Name: d.Name, LastModified: d.LastModified, Pinned: d.Pinned}
}

func toLines(lines []*store.Line) []*Line {
	out := make([]*Line, len(lines))
	for i, ln := range lines {
		out[i] = &Line{ID: ln.ID, Position: ln.SortOrder, Expression: ln.Expression, Result: ln.Result}
	}
	return out
}
