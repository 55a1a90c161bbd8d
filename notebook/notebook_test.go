package notebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vishaltelangre/nerdcalci/archive"
)

func newTestNotebook(t *testing.T) *Notebook {
	t.Helper()
	nb, err := New(&Config{
		DBPath: filepath.Join(t.TempDir(), "nerdcalci.db"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new notebook: %v", err)
	}
	t.Cleanup(func() { nb.Close() })
	return nb
}

func results(lines []*Line) []string {
	out := make([]string, len(lines))
	for i, ln := range lines {
		out[i] = ln.Result
	}
	return out
}

func TestCreateDocumentValidation(t *testing.T) {
	// WHAT: Empty or over-long names are rejected; valid names trim.
	// WHY: The 50-character cap comes from the document list layout.
	nb := newTestNotebook(t)
	ctx := context.Background()

	if _, err := nb.CreateDocument(ctx, "   "); !errors.Is(err, ErrNameInvalid) {
		t.Errorf("blank name: err = %v, want ErrNameInvalid", err)
	}

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := nb.CreateDocument(ctx, string(long)); !errors.Is(err, ErrNameInvalid) {
		t.Errorf("51-char name: err = %v, want ErrNameInvalid", err)
	}

	doc, err := nb.CreateDocument(ctx, "  Groceries  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.Name != "Groceries" {
		t.Errorf("name = %q, want trimmed", doc.Name)
	}
}

func TestPinnedLimit(t *testing.T) {
	// WHAT: Pinning past the cap fails; unpinning frees a slot.
	// WHY: The cap keeps the pinned section of the list bounded.
	nb := newTestNotebook(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 11; i++ {
		doc, err := nb.CreateDocument(ctx, fmt.Sprintf("doc %d", i))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, doc.ID)
	}
	for i := 0; i < 10; i++ {
		if _, err := nb.TogglePin(ctx, ids[i]); err != nil {
			t.Fatalf("pin %d: %v", i, err)
		}
	}
	if _, err := nb.TogglePin(ctx, ids[10]); !errors.Is(err, ErrPinnedLimit) {
		t.Errorf("11th pin: err = %v, want ErrPinnedLimit", err)
	}

	// Unpinning is always allowed and frees a slot.
	if _, err := nb.TogglePin(ctx, ids[0]); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	if _, err := nb.TogglePin(ctx, ids[10]); err != nil {
		t.Errorf("pin after unpin: %v", err)
	}
}

func TestEditAndEvaluate(t *testing.T) {
	// WHAT: Edits re-evaluate the whole document with cross-line
	// variables, and the results persist.
	// WHY: This mutate/evaluate/persist unit is the core loop.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "budget")
	nb.AppendLine(ctx, doc.ID, "rent = 1200")
	nb.AppendLine(ctx, doc.ID, "food = 400")
	lines, err := nb.AppendLine(ctx, doc.ID, "rent + food")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if diff := cmp.Diff([]string{"1200", "400", "1600"}, results(lines)); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}

	// Editing an early line ripples into the lines below it.
	lines, err = nb.UpdateLine(ctx, lines[0].ID, "rent = 1300")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if diff := cmp.Diff([]string{"1300", "400", "1700"}, results(lines)); diff != "" {
		t.Errorf("results after edit (-want +got):\n%s", diff)
	}

	// Persisted, not just returned.
	stored, err := nb.Lines(ctx, doc.ID)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if diff := cmp.Diff(results(lines), results(stored)); diff != "" {
		t.Errorf("stored results diverge (-returned +stored):\n%s", diff)
	}
}

func TestInsertLineMiddle(t *testing.T) {
	// WHAT: Inserting a definition above its use fixes the use's result.
	// WHY: Position decides visibility; a variable sees only lines above.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "doc")
	lines, _ := nb.AppendLine(ctx, doc.ID, "x * 2")
	if lines[0].Result != "Err" {
		t.Fatalf("undefined x: result = %q, want Err", lines[0].Result)
	}

	lines, err := nb.InsertLine(ctx, doc.ID, 0, "x = 21")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if diff := cmp.Diff([]string{"21", "42"}, results(lines)); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
}

func TestRemoveLineReevaluates(t *testing.T) {
	// WHAT: Removing a definition breaks later references to it.
	// WHY: Stale results would silently lie after a delete.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "doc")
	nb.AppendLine(ctx, doc.ID, "x = 5")
	lines, _ := nb.AppendLine(ctx, doc.ID, "x + 1")

	lines, err := nb.RemoveLine(ctx, lines[0].ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(lines) != 1 || lines[0].Result != "Err" {
		t.Errorf("after remove: %+v", lines)
	}
}

func TestUndoRedoFlow(t *testing.T) {
	// WHAT: Undo walks edits back, redo forward, and a fresh edit after
	// an undo discards the redo branch.
	// WHY: Linear history is the behaviour users expect from ctrl-z.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "doc")
	nb.AppendLine(ctx, doc.ID, "a = 1")
	nb.AppendLine(ctx, doc.ID, "a + 1")

	if !nb.CanUndo(doc.ID) {
		t.Fatal("CanUndo = false after edits")
	}

	lines, err := nb.Undo(ctx, doc.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if len(lines) != 1 || lines[0].Expression != "a = 1" {
		t.Fatalf("after undo: %+v", lines)
	}

	lines, err = nb.Redo(ctx, doc.ID)
	if err != nil {
		t.Fatalf("redo: %v", err)
	}
	if len(lines) != 2 || lines[1].Result != "2" {
		t.Fatalf("after redo: %+v", lines)
	}

	// Undo again, then edit: redo must be gone.
	nb.Undo(ctx, doc.ID)
	nb.AppendLine(ctx, doc.ID, "a * 10")
	if nb.CanRedo(doc.ID) {
		t.Error("redo branch survived a new edit")
	}
	if _, err := nb.Redo(ctx, doc.ID); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("redo: err = %v, want ErrNothingToRedo", err)
	}
}

func TestUndoEmpty(t *testing.T) {
	// WHAT: Undo with no history reports ErrNothingToUndo.
	// WHY: The surfaces map this to a disabled button, not a failure.
	nb := newTestNotebook(t)
	ctx := context.Background()
	doc, _ := nb.CreateDocument(ctx, "doc")
	if _, err := nb.Undo(ctx, doc.ID); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("err = %v, want ErrNothingToUndo", err)
	}
}

func TestClearLinesDropsHistory(t *testing.T) {
	// WHAT: Clearing a document empties it and wipes both history stacks.
	// WHY: Pre-clear snapshots reference lines that no longer exist;
	// restoring them would resurrect deleted content.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "doc")
	nb.AppendLine(ctx, doc.ID, "a = 1")
	nb.AppendLine(ctx, doc.ID, "b = 2")

	if err := nb.ClearLines(ctx, doc.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	lines, _ := nb.Lines(ctx, doc.ID)
	if len(lines) != 0 {
		t.Fatalf("lines after clear: %d", len(lines))
	}

	if nb.CanUndo(doc.ID) {
		t.Error("history survived a clear")
	}
	if _, err := nb.Undo(ctx, doc.ID); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("undo after clear: err = %v, want ErrNothingToUndo", err)
	}
}

func TestUpdateLineNotUndoable(t *testing.T) {
	// WHAT: Editing a line's text does not push an undo snapshot.
	// WHY: Only structural mutations are undoable; per-keystroke
	// history would bury the insert/delete steps users actually revert.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "doc")
	lines, _ := nb.AppendLine(ctx, doc.ID, "a = 1")

	// One structural edit on the stack so far.
	nb.Undo(ctx, doc.ID)
	nb.Redo(ctx, doc.ID)

	if _, err := nb.UpdateLine(ctx, lines[0].ID, "a = 99"); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Undo steps past the text edit straight to the pre-insert state.
	after, err := nb.Undo(ctx, doc.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("lines after undo: %+v, want empty document", after)
	}
}

func TestDuplicateDocument(t *testing.T) {
	// WHAT: Duplicate copies content but not history, and later edits
	// stay independent.
	// WHY: A copy is a new document, not a linked view.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "orig")
	nb.AppendLine(ctx, doc.ID, "a = 1")

	copied, err := nb.DuplicateDocument(ctx, doc.ID, "copy")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if nb.CanUndo(copied.ID) {
		t.Error("copy inherited history")
	}

	lines, _ := nb.Lines(ctx, copied.ID)
	if len(lines) != 1 || lines[0].Expression != "a = 1" || lines[0].Result != "1" {
		t.Fatalf("copied lines: %+v", lines)
	}

	nb.AppendLine(ctx, copied.ID, "a + 1")
	origLines, _ := nb.Lines(ctx, doc.ID)
	if len(origLines) != 1 {
		t.Errorf("original grew to %d lines", len(origLines))
	}
}

func TestDeleteDocument(t *testing.T) {
	// WHAT: Delete removes the document and invalidates its history.
	// WHY: A deleted document must not resurrect through undo.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "doomed")
	nb.AppendLine(ctx, doc.ID, "1 + 1")
	if err := nb.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := nb.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
	if nb.CanUndo(doc.ID) {
		t.Error("history survived delete")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	// WHAT: Export into an archive and import into a fresh notebook
	// recovers documents with re-evaluated results.
	// WHY: Restore must not depend on results stored in the archive.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "budget")
	nb.AppendLine(ctx, doc.ID, "rent = 1200")
	nb.AppendLine(ctx, doc.ID, "rent * 12")

	docs, err := nb.ExportAll(ctx)
	if err != nil {
		t.Fatalf("export all: %v", err)
	}
	var buf bytes.Buffer
	if _, err := archive.Export(&buf, docs); err != nil {
		t.Fatalf("archive export: %v", err)
	}

	other := newTestNotebook(t)
	parsed, err := archive.Import(&buf)
	if err != nil {
		t.Fatalf("archive import: %v", err)
	}
	count, err := other.ImportAll(ctx, parsed)
	if err != nil {
		t.Fatalf("import all: %v", err)
	}
	if count != 1 {
		t.Fatalf("imported %d documents, want 1", count)
	}

	restored, err := other.ListDocuments(ctx)
	if err != nil || len(restored) != 1 {
		t.Fatalf("list: %v, %d docs", err, len(restored))
	}
	lines, _ := other.Lines(ctx, restored[0].ID)
	if diff := cmp.Diff([]string{"1200", "14400"}, results(lines)); diff != "" {
		t.Errorf("restored results (-want +got):\n%s", diff)
	}
}

func TestImportOverwritesByName(t *testing.T) {
	// WHAT: Importing a document whose name exists replaces its lines
	// but keeps its identity.
	// WHY: Restoring a backup should not duplicate every document.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "budget")
	nb.AppendLine(ctx, doc.ID, "old = 1")

	_, err := nb.ImportAll(ctx, []archive.Parsed{
		{Name: "budget", Expressions: []string{"new = 2", "new * 2"}},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	docs, _ := nb.ListDocuments(ctx)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if docs[0].ID != doc.ID {
		t.Errorf("document identity changed: %d != %d", docs[0].ID, doc.ID)
	}
	lines, _ := nb.Lines(ctx, doc.ID)
	if diff := cmp.Diff([]string{"2", "4"}, results(lines)); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
}

func TestRenderText(t *testing.T) {
	// WHAT: RenderText produces the annotated plain-text form.
	// WHY: The same text ships in archives and in the render API.
	nb := newTestNotebook(t)
	ctx := context.Background()

	doc, _ := nb.CreateDocument(ctx, "doc")
	nb.AppendLine(ctx, doc.ID, "rate = 5")
	nb.AppendLine(ctx, doc.ID, "rate * 3")

	text, err := nb.RenderText(ctx, doc.ID)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "rate = 5\nrate * 3 # 15"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestLastBackupAt(t *testing.T) {
	// WHAT: The backup timestamp starts at zero and round-trips.
	// WHY: Scheduling decides "due" by comparing against this value.
	nb := newTestNotebook(t)
	ctx := context.Background()

	ts, err := nb.LastBackupAt(ctx)
	if err != nil {
		t.Fatalf("last backup at: %v", err)
	}
	if ts != 0 {
		t.Errorf("initial timestamp = %d, want 0", ts)
	}

	if err := nb.SetLastBackupAt(ctx, 1700000000000); err != nil {
		t.Fatalf("set: %v", err)
	}
	ts, _ = nb.LastBackupAt(ctx)
	if ts != 1700000000000 {
		t.Errorf("timestamp = %d", ts)
	}
}
